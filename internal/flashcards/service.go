package flashcards

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opListDecks  = "flashcards.list_decks"
	opCreateDeck = "flashcards.create_deck"
	opGetDeck    = "flashcards.get_deck"
	opUpdateDeck = "flashcards.update_deck"
	opDeleteDeck = "flashcards.delete_deck"
	opListCards  = "flashcards.list_cards"
	opCreateCard = "flashcards.create_card"
	opUpdateCard = "flashcards.update_card"
	opDeleteCard = "flashcards.delete_card"
	opReviewCard = "flashcards.review_card"
	opDueCards   = "flashcards.due_cards"
	opStudyAll   = "flashcards.study_all"

	maxStudyLimit = 100
)

var errMissingDatabase = errors.New("flashcards: database connection required")

// ReviewObserver is notified after every stored review.
type ReviewObserver interface {
	ReviewRecorded(status string)
}

// ServiceConfig describes the dependencies of the flashcards service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	Reviews  ReviewObserver
}

// Service owns decks, cards and per-user review scheduling.
type Service struct {
	db      *gorm.DB
	now     func() time.Time
	logger  *zap.Logger
	reviews ReviewObserver
}

// NewService constructs the flashcards service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      cfg.Database,
		now:     clock,
		logger:  logger,
		reviews: cfg.Reviews,
	}, nil
}

// access distinguishes reads, which hide foreign decks, from mutations, which reject them.
type access int

const (
	accessRead access = iota
	accessWrite
)

// ListDecks returns the user's decks, most recently updated first.
func (s *Service) ListDecks(ctx context.Context, userID uint) ([]DeckSummary, error) {
	var decks []Deck
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&decks).Error
	if err != nil {
		s.logError(opListDecks, "query_failed", err, zap.Uint("user_id", userID))
		return nil, apperrors.Internal(opListDecks, "query_failed", err)
	}

	summaries := make([]DeckSummary, 0, len(decks))
	for _, deck := range decks {
		counts, err := s.deckCounts(ctx, s.db, deck.ID, userID)
		if err != nil {
			s.logError(opListDecks, "count_failed", err, zap.Uint("deck_id", deck.ID))
			return nil, apperrors.Internal(opListDecks, "count_failed", err)
		}
		summaries = append(summaries, DeckSummary{Deck: deck, Counts: counts})
	}
	return summaries, nil
}

// CreateDeck stores a new deck for the user.
func (s *Service) CreateDeck(ctx context.Context, userID uint, input DeckInput) (DeckSummary, error) {
	if input.Name == nil {
		return DeckSummary{}, invalidDeckName(opCreateDeck)
	}
	name, err := normalizeDeckName(opCreateDeck, *input.Name)
	if err != nil {
		return DeckSummary{}, err
	}
	now := s.now().UTC()
	deck := Deck{
		UserID:      userID,
		Name:        name,
		Description: normalizeDescription(input.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&deck).Error; err != nil {
		s.logError(opCreateDeck, "insert_failed", err, zap.Uint("user_id", userID))
		return DeckSummary{}, apperrors.Internal(opCreateDeck, "insert_failed", err)
	}
	return DeckSummary{Deck: deck}, nil
}

// GetDeck returns one of the user's decks with status counts.
func (s *Service) GetDeck(ctx context.Context, userID, deckID uint) (DeckSummary, error) {
	deck, err := s.ownedDeck(ctx, s.db, opGetDeck, userID, deckID, accessRead)
	if err != nil {
		return DeckSummary{}, err
	}
	counts, err := s.deckCounts(ctx, s.db, deck.ID, userID)
	if err != nil {
		s.logError(opGetDeck, "count_failed", err, zap.Uint("deck_id", deckID))
		return DeckSummary{}, apperrors.Internal(opGetDeck, "count_failed", err)
	}
	return DeckSummary{Deck: deck, Counts: counts}, nil
}

// UpdateDeck applies the provided fields to a deck the user owns.
func (s *Service) UpdateDeck(ctx context.Context, userID, deckID uint, input DeckInput) (DeckSummary, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name, err := normalizeDeckName(opUpdateDeck, *input.Name)
		if err != nil {
			return DeckSummary{}, err
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = normalizeDescription(input.Description)
	}

	var summary DeckSummary
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deck, err := s.ownedDeck(ctx, tx, opUpdateDeck, userID, deckID, accessWrite)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			updates["updated_at"] = s.now().UTC()
			if err := tx.Model(&Deck{}).Where("id = ?", deck.ID).Updates(updates).Error; err != nil {
				s.logError(opUpdateDeck, "update_failed", err, zap.Uint("deck_id", deckID))
				return apperrors.Internal(opUpdateDeck, "update_failed", err)
			}
			if err := tx.Where("id = ?", deck.ID).Take(&deck).Error; err != nil {
				s.logError(opUpdateDeck, "reload_failed", err, zap.Uint("deck_id", deckID))
				return apperrors.Internal(opUpdateDeck, "reload_failed", err)
			}
		}
		counts, err := s.deckCounts(ctx, tx, deck.ID, userID)
		if err != nil {
			s.logError(opUpdateDeck, "count_failed", err, zap.Uint("deck_id", deckID))
			return apperrors.Internal(opUpdateDeck, "count_failed", err)
		}
		summary = DeckSummary{Deck: deck, Counts: counts}
		return nil
	})
	if txErr != nil {
		return DeckSummary{}, txErr
	}
	return summary, nil
}

// DeleteDeck removes a deck, its cards and every study record of those cards.
func (s *Service) DeleteDeck(ctx context.Context, userID, deckID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedDeck(ctx, tx, opDeleteDeck, userID, deckID, accessWrite); err != nil {
			return err
		}
		var cardIDs []uint
		if err := tx.Model(&Card{}).Where("deck_id = ?", deckID).Pluck("id", &cardIDs).Error; err != nil {
			s.logError(opDeleteDeck, "card_query_failed", err, zap.Uint("deck_id", deckID))
			return apperrors.Internal(opDeleteDeck, "card_query_failed", err)
		}
		if len(cardIDs) > 0 {
			if err := tx.Where("card_id IN ?", cardIDs).Delete(&StudyQueue{}).Error; err != nil {
				s.logError(opDeleteDeck, "study_delete_failed", err, zap.Uint("deck_id", deckID))
				return apperrors.Internal(opDeleteDeck, "study_delete_failed", err)
			}
			if err := tx.Where("deck_id = ?", deckID).Delete(&Card{}).Error; err != nil {
				s.logError(opDeleteDeck, "card_delete_failed", err, zap.Uint("deck_id", deckID))
				return apperrors.Internal(opDeleteDeck, "card_delete_failed", err)
			}
		}
		if err := tx.Where("id = ?", deckID).Delete(&Deck{}).Error; err != nil {
			s.logError(opDeleteDeck, "deck_delete_failed", err, zap.Uint("deck_id", deckID))
			return apperrors.Internal(opDeleteDeck, "deck_delete_failed", err)
		}
		s.logger.Info("deck deleted",
			zap.Uint("deck_id", deckID),
			zap.Int("cards", len(cardIDs)))
		return nil
	})
}

// ListCards returns a deck's cards, oldest first, with the caller's study state.
func (s *Service) ListCards(ctx context.Context, userID, deckID uint) ([]CardView, error) {
	if _, err := s.ownedDeck(ctx, s.db, opListCards, userID, deckID, accessRead); err != nil {
		return nil, err
	}
	views, err := s.cardViews(ctx, s.db, deckID, userID, "created_at ASC")
	if err != nil {
		s.logError(opListCards, "query_failed", err, zap.Uint("deck_id", deckID))
		return nil, apperrors.Internal(opListCards, "query_failed", err)
	}
	return views, nil
}

// CreateCard adds a card to a deck the user owns.
func (s *Service) CreateCard(ctx context.Context, userID, deckID uint, input CardInput) (CardView, error) {
	if input.Front == nil || input.Back == nil {
		return CardView{}, apperrors.New(apperrors.KindValidation, opCreateCard, "missing_text",
			"front and back are required", nil)
	}
	if err := validateCardText(opCreateCard, input); err != nil {
		return CardView{}, err
	}
	if _, err := s.ownedDeck(ctx, s.db, opCreateCard, userID, deckID, accessWrite); err != nil {
		return CardView{}, err
	}
	now := s.now().UTC()
	card := Card{
		DeckID:    deckID,
		Front:     *input.Front,
		Back:      *input.Back,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&card).Error; err != nil {
		s.logError(opCreateCard, "insert_failed", err, zap.Uint("deck_id", deckID))
		return CardView{}, apperrors.Internal(opCreateCard, "insert_failed", err)
	}
	return CardView{Card: card, State: Unreviewed{}}, nil
}

// UpdateCard applies the provided text fields to a card in a deck the user owns.
func (s *Service) UpdateCard(ctx context.Context, userID, cardID uint, input CardInput) (CardView, error) {
	if err := validateCardText(opUpdateCard, input); err != nil {
		return CardView{}, err
	}
	updates := map[string]any{}
	if input.Front != nil {
		updates["front"] = *input.Front
	}
	if input.Back != nil {
		updates["back"] = *input.Back
	}

	var view CardView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := s.ownedCard(ctx, tx, opUpdateCard, userID, cardID)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			updates["updated_at"] = s.now().UTC()
			if err := tx.Model(&Card{}).Where("id = ?", card.ID).Updates(updates).Error; err != nil {
				s.logError(opUpdateCard, "update_failed", err, zap.Uint("card_id", cardID))
				return apperrors.Internal(opUpdateCard, "update_failed", err)
			}
			if err := tx.Where("id = ?", card.ID).Take(&card).Error; err != nil {
				s.logError(opUpdateCard, "reload_failed", err, zap.Uint("card_id", cardID))
				return apperrors.Internal(opUpdateCard, "reload_failed", err)
			}
		}
		record, err := findStudyRecord(tx, card.ID, userID)
		if err != nil {
			s.logError(opUpdateCard, "study_query_failed", err, zap.Uint("card_id", cardID))
			return apperrors.Internal(opUpdateCard, "study_query_failed", err)
		}
		view = CardView{Card: card, State: StateOf(record)}
		return nil
	})
	if txErr != nil {
		return CardView{}, txErr
	}
	return view, nil
}

// DeleteCard removes a card and its study records.
func (s *Service) DeleteCard(ctx context.Context, userID, cardID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedCard(ctx, tx, opDeleteCard, userID, cardID); err != nil {
			return err
		}
		if err := tx.Where("card_id = ?", cardID).Delete(&StudyQueue{}).Error; err != nil {
			s.logError(opDeleteCard, "study_delete_failed", err, zap.Uint("card_id", cardID))
			return apperrors.Internal(opDeleteCard, "study_delete_failed", err)
		}
		if err := tx.Where("id = ?", cardID).Delete(&Card{}).Error; err != nil {
			s.logError(opDeleteCard, "card_delete_failed", err, zap.Uint("card_id", cardID))
			return apperrors.Internal(opDeleteCard, "card_delete_failed", err)
		}
		return nil
	})
}

// ReviewCard records a review and schedules the next one after interval.
func (s *Service) ReviewCard(ctx context.Context, userID, cardID uint, interval Interval) (ReviewResult, error) {
	if interval.Value < minIntervalValue || interval.Value > maxIntervalValue || interval.Unit <= 0 {
		return ReviewResult{}, apperrors.New(apperrors.KindValidation, opReviewCard, "invalid_interval",
			"review interval out of range", nil)
	}

	var stored StudyQueue
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedCard(ctx, tx, opReviewCard, userID, cardID); err != nil {
			return err
		}

		var existing StudyQueue
		var state ReviewState = Unreviewed{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("card_id = ? AND user_id = ?", cardID, userID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			s.logError(opReviewCard, "study_select_failed", err,
				zap.Uint("card_id", cardID),
				zap.Uint("user_id", userID))
			return apperrors.Internal(opReviewCard, "study_select_failed", err)
		default:
			state = Tracked{Record: existing}
		}

		stored = applyReview(state, cardID, userID, interval, s.now().UTC())
		if err := tx.Save(&stored).Error; err != nil {
			s.logError(opReviewCard, "study_save_failed", err,
				zap.Uint("card_id", cardID),
				zap.Uint("user_id", userID))
			return apperrors.Internal(opReviewCard, "study_save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return ReviewResult{}, txErr
	}

	if s.reviews != nil {
		s.reviews.ReviewRecorded(string(stored.Status))
	}
	return ReviewResult{
		CardID:       cardID,
		Status:       stored.Status,
		NextReviewAt: stored.NextReviewAt,
		ReviewCount:  stored.ReviewCount,
	}, nil
}

// DueCards returns up to limit cards that are new or whose next review is not in the future,
// in card id order. The limit must fall in [1,100].
func (s *Service) DueCards(ctx context.Context, userID, deckID uint, limit int) ([]CardView, error) {
	if limit < 1 || limit > maxStudyLimit {
		return nil, apperrors.New(apperrors.KindValidation, opDueCards, "invalid_limit",
			fmt.Sprintf("limit must be between 1 and %d", maxStudyLimit), nil)
	}
	if _, err := s.ownedDeck(ctx, s.db, opDueCards, userID, deckID, accessRead); err != nil {
		return nil, err
	}
	views, err := s.cardViews(ctx, s.db, deckID, userID, "id ASC")
	if err != nil {
		s.logError(opDueCards, "query_failed", err, zap.Uint("deck_id", deckID))
		return nil, apperrors.Internal(opDueCards, "query_failed", err)
	}

	now := s.now().UTC()
	due := make([]CardView, 0, limit)
	for _, view := range views {
		if len(due) == limit {
			break
		}
		if view.State.IsDue(now) {
			due = append(due, view)
		}
	}
	return due, nil
}

// StudyAll returns every card of the deck, least recently reviewed first. Never reviewed cards lead.
func (s *Service) StudyAll(ctx context.Context, userID, deckID uint) ([]CardView, error) {
	if _, err := s.ownedDeck(ctx, s.db, opStudyAll, userID, deckID, accessRead); err != nil {
		return nil, err
	}
	views, err := s.cardViews(ctx, s.db, deckID, userID, "id ASC")
	if err != nil {
		s.logError(opStudyAll, "query_failed", err, zap.Uint("deck_id", deckID))
		return nil, apperrors.Internal(opStudyAll, "query_failed", err)
	}
	sort.SliceStable(views, func(i, j int) bool {
		left, right := views[i].State.LastReviewedAt(), views[j].State.LastReviewedAt()
		switch {
		case left == nil:
			return right != nil
		case right == nil:
			return false
		default:
			return left.Before(*right)
		}
	})
	return views, nil
}

func (s *Service) ownedDeck(ctx context.Context, db *gorm.DB, operation string, userID, deckID uint, mode access) (Deck, error) {
	var deck Deck
	err := db.WithContext(ctx).Where("id = ?", deckID).Take(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Deck{}, deckNotFound(operation)
	}
	if err != nil {
		s.logError(operation, "deck_query_failed", err, zap.Uint("deck_id", deckID))
		return Deck{}, apperrors.Internal(operation, "deck_query_failed", err)
	}
	if deck.UserID != userID {
		if mode == accessRead {
			return Deck{}, deckNotFound(operation)
		}
		return Deck{}, apperrors.New(apperrors.KindForbidden, operation, "not_owner", "Not authorized", nil)
	}
	return deck, nil
}

func (s *Service) ownedCard(ctx context.Context, db *gorm.DB, operation string, userID, cardID uint) (Card, error) {
	var card Card
	err := db.WithContext(ctx).Where("id = ?", cardID).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Card{}, apperrors.New(apperrors.KindNotFound, operation, "card_not_found", "Card not found", nil)
	}
	if err != nil {
		s.logError(operation, "card_query_failed", err, zap.Uint("card_id", cardID))
		return Card{}, apperrors.Internal(operation, "card_query_failed", err)
	}
	if _, err := s.ownedDeck(ctx, db, operation, userID, card.DeckID, accessWrite); err != nil {
		return Card{}, err
	}
	return card, nil
}

func (s *Service) cardViews(ctx context.Context, db *gorm.DB, deckID, userID uint, order string) ([]CardView, error) {
	var cards []Card
	if err := db.WithContext(ctx).Where("deck_id = ?", deckID).Order(order).Order("id ASC").Find(&cards).Error; err != nil {
		return nil, err
	}
	records, err := studyRecords(ctx, db, deckID, userID)
	if err != nil {
		return nil, err
	}
	views := make([]CardView, 0, len(cards))
	for _, card := range cards {
		var record *StudyQueue
		if stored, ok := records[card.ID]; ok {
			record = &stored
		}
		views = append(views, CardView{Card: card, State: StateOf(record)})
	}
	return views, nil
}

func (s *Service) deckCounts(ctx context.Context, db *gorm.DB, deckID, userID uint) (StatusCounts, error) {
	views, err := s.cardViews(ctx, db, deckID, userID, "id ASC")
	if err != nil {
		return StatusCounts{}, err
	}
	states := make([]ReviewState, 0, len(views))
	for _, view := range views {
		states = append(states, view.State)
	}
	return countStates(states), nil
}

func studyRecords(ctx context.Context, db *gorm.DB, deckID, userID uint) (map[uint]StudyQueue, error) {
	var records []StudyQueue
	err := db.WithContext(ctx).
		Where("user_id = ? AND card_id IN (?)", userID,
			db.Session(&gorm.Session{NewDB: true}).Model(&Card{}).Select("id").Where("deck_id = ?", deckID)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	byCard := make(map[uint]StudyQueue, len(records))
	for _, record := range records {
		byCard[record.CardID] = record
	}
	return byCard, nil
}

func findStudyRecord(db *gorm.DB, cardID, userID uint) (*StudyQueue, error) {
	var record StudyQueue
	err := db.Where("card_id = ? AND user_id = ?", cardID, userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func normalizeDeckName(operation, raw string) (string, error) {
	name := strings.TrimSpace(raw)
	length := utf8.RuneCountInString(name)
	if length == 0 || length > maxDeckNameLength {
		return "", invalidDeckName(operation)
	}
	return name, nil
}

func invalidDeckName(operation string) error {
	return apperrors.New(apperrors.KindValidation, operation, "invalid_name",
		fmt.Sprintf("name must be between 1 and %d characters", maxDeckNameLength), nil)
}

func normalizeDescription(raw *string) *string {
	if raw == nil {
		return nil
	}
	description := strings.TrimSpace(*raw)
	if description == "" {
		return nil
	}
	if utf8.RuneCountInString(description) > maxDeckDescriptionLength {
		description = string([]rune(description)[:maxDeckDescriptionLength])
	}
	return &description
}

func validateCardText(operation string, input CardInput) error {
	if input.Front != nil && strings.TrimSpace(*input.Front) == "" {
		return apperrors.New(apperrors.KindValidation, operation, "invalid_front", "front must not be empty", nil)
	}
	if input.Back != nil && strings.TrimSpace(*input.Back) == "" {
		return apperrors.New(apperrors.KindValidation, operation, "invalid_back", "back must not be empty", nil)
	}
	return nil
}

func deckNotFound(operation string) error {
	return apperrors.New(apperrors.KindNotFound, operation, "deck_not_found", "Deck not found", nil)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("flashcards service error", attrs...)
}
