package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/flashcards"
	"github.com/gin-gonic/gin"
)

type deckPayload struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CardCount     int       `json:"card_count"`
	NewCount      int       `json:"new_count"`
	LearningCount int       `json:"learning_count"`
	ReviewedCount int       `json:"reviewed_count"`
}

type cardPayload struct {
	ID           uint       `json:"id"`
	DeckID       uint       `json:"deck_id"`
	Front        string     `json:"front"`
	Back         string     `json:"back"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Status       string     `json:"status"`
	NextReviewAt *time.Time `json:"next_review_at"`
}

type studyCardPayload struct {
	ID          uint   `json:"id"`
	Front       string `json:"front"`
	Back        string `json:"back"`
	Status      string `json:"status"`
	ReviewCount int    `json:"review_count"`
}

type reviewPayload struct {
	CardID       uint      `json:"card_id"`
	Status       string    `json:"status"`
	NextReviewAt time.Time `json:"next_review_at"`
	ReviewCount  int       `json:"review_count"`
}

type deckRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type cardRequest struct {
	Front *string `json:"front"`
	Back  *string `json:"back"`
}

type reviewRequest struct {
	RemindValue int    `json:"remind_value"`
	RemindUnit  string `json:"remind_unit"`
}

func (h *httpHandler) handleListDecks(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	decks, err := h.flashcards.ListDecks(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	response := make([]deckPayload, 0, len(decks))
	for _, deck := range decks {
		response = append(response, newDeckPayload(deck))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateDeck(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	var request deckRequest
	if !bindJSON(c, &request) {
		return
	}
	deck, err := h.flashcards.CreateDeck(c.Request.Context(), user.ID, flashcards.DeckInput{
		Name:        request.Name,
		Description: request.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDeckPayload(deck))
}

func (h *httpHandler) handleGetDeck(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	deck, err := h.flashcards.GetDeck(c.Request.Context(), user.ID, deckID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleUpdateDeck(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	var request deckRequest
	if !bindJSON(c, &request) {
		return
	}
	deck, err := h.flashcards.UpdateDeck(c.Request.Context(), user.ID, deckID, flashcards.DeckInput{
		Name:        request.Name,
		Description: request.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDeckPayload(deck))
}

func (h *httpHandler) handleDeleteDeck(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	if err := h.flashcards.DeleteDeck(c.Request.Context(), user.ID, deckID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListCards(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	cards, err := h.flashcards.ListCards(c.Request.Context(), user.ID, deckID)
	if err != nil {
		respondError(c, err)
		return
	}
	response := make([]cardPayload, 0, len(cards))
	for _, card := range cards {
		response = append(response, newCardPayload(card))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateCard(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	var request cardRequest
	if !bindJSON(c, &request) {
		return
	}
	card, err := h.flashcards.CreateCard(c.Request.Context(), user.ID, deckID, flashcards.CardInput{
		Front: request.Front,
		Back:  request.Back,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCardPayload(card))
}

func (h *httpHandler) handleUpdateCard(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	cardID, ok := pathID(c, "cardId")
	if !ok {
		return
	}
	var request cardRequest
	if !bindJSON(c, &request) {
		return
	}
	card, err := h.flashcards.UpdateCard(c.Request.Context(), user.ID, cardID, flashcards.CardInput{
		Front: request.Front,
		Back:  request.Back,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCardPayload(card))
}

func (h *httpHandler) handleDeleteCard(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	cardID, ok := pathID(c, "cardId")
	if !ok {
		return
	}
	if err := h.flashcards.DeleteCard(c.Request.Context(), user.ID, cardID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleStudy(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	limit, present, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	if !present {
		limit = flashcards.DefaultStudyLimit
	}
	cards, err := h.flashcards.DueCards(c.Request.Context(), user.ID, deckID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStudyCardPayloads(cards))
}

func (h *httpHandler) handleStudyAll(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	deckID, ok := pathID(c, "deckId")
	if !ok {
		return
	}
	cards, err := h.flashcards.StudyAll(c.Request.Context(), user.ID, deckID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStudyCardPayloads(cards))
}

func (h *httpHandler) handleReviewCard(c *gin.Context) {
	user, ok := requestUser(c)
	if !ok {
		return
	}
	cardID, ok := pathID(c, "cardId")
	if !ok {
		return
	}
	var request reviewRequest
	if !bindJSON(c, &request) {
		return
	}
	interval, err := flashcards.NewInterval(request.RemindValue, request.RemindUnit)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.flashcards.ReviewCard(c.Request.Context(), user.ID, cardID, interval)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewPayload{
		CardID:       result.CardID,
		Status:       string(result.Status),
		NextReviewAt: result.NextReviewAt,
		ReviewCount:  result.ReviewCount,
	})
}

func newDeckPayload(summary flashcards.DeckSummary) deckPayload {
	return deckPayload{
		ID:            summary.Deck.ID,
		UserID:        summary.Deck.UserID,
		Name:          summary.Deck.Name,
		Description:   summary.Deck.Description,
		CreatedAt:     summary.Deck.CreatedAt,
		UpdatedAt:     summary.Deck.UpdatedAt,
		CardCount:     summary.Counts.Total,
		NewCount:      summary.Counts.New,
		LearningCount: summary.Counts.Learning,
		ReviewedCount: summary.Counts.Reviewed,
	}
}

func newCardPayload(view flashcards.CardView) cardPayload {
	return cardPayload{
		ID:           view.Card.ID,
		DeckID:       view.Card.DeckID,
		Front:        view.Card.Front,
		Back:         view.Card.Back,
		CreatedAt:    view.Card.CreatedAt,
		UpdatedAt:    view.Card.UpdatedAt,
		Status:       string(view.State.Status()),
		NextReviewAt: view.State.NextReviewAt(),
	}
}

func newStudyCardPayloads(views []flashcards.CardView) []studyCardPayload {
	response := make([]studyCardPayload, 0, len(views))
	for _, view := range views {
		response = append(response, studyCardPayload{
			ID:          view.Card.ID,
			Front:       view.Card.Front,
			Back:        view.Card.Back,
			Status:      string(view.State.Status()),
			ReviewCount: view.State.ReviewCount(),
		})
	}
	return response
}
