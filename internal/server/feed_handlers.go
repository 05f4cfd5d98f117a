package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type feedEntryPayload struct {
	ID          uint    `json:"id"`
	Body        string  `json:"body"`
	Likes       int     `json:"likes"`
	Replies     int     `json:"replies"`
	Restacks    int     `json:"restacks"`
	Saves       int     `json:"saves"`
	UserID      string  `json:"userId"`
	ProfileName string  `json:"profileName"`
	ProfileURL  *string `json:"profileUrl"`
}

type postPayload struct {
	feedEntryPayload
	IsComment     bool      `json:"is_comment"`
	ParentTweetID *uint     `json:"parent_tweet_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type commentPayload struct {
	ID          uint    `json:"id"`
	UserID      *string `json:"userId"`
	ProfileName *string `json:"profileName"`
	Body        string  `json:"body"`
	Likes       int     `json:"likes"`
	Replies     int     `json:"replies"`
	ProfileURL  *string `json:"profileUrl"`
}

type createTweetRequest struct {
	Body          string `json:"body"`
	IsComment     bool   `json:"is_comment"`
	ParentTweetID *uint  `json:"parent_tweet_id"`
}

type userPayload struct {
	ID         uint    `json:"id"`
	Username   string  `json:"username"`
	Bio        *string `json:"bio"`
	ProfileURL *string `json:"profile_url"`
}

type registerUserRequest struct {
	Username    string `json:"username"`
	Bio         string `json:"bio"`
	ExternalID  string `json:"external_id"`
	SupabaseUID string `json:"supabase_uid"`
}

func (h *httpHandler) handleHomeFeed(c *gin.Context) {
	limit, _, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, _, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	posts, err := h.feed.ListFeed(c.Request.Context(), feed.NewPage(offset, limit))
	if err != nil {
		respondError(c, err)
		return
	}
	response := make([]feedEntryPayload, 0, len(posts))
	for _, post := range posts {
		response = append(response, newFeedEntryPayload(post))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetTweet(c *gin.Context) {
	tweetID, ok := pathID(c, "tweetId")
	if !ok {
		return
	}
	post, err := h.feed.GetPost(c.Request.Context(), tweetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostPayload(post))
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	tweetID, ok := pathID(c, "tweetId")
	if !ok {
		return
	}
	comments, err := h.feed.ListComments(c.Request.Context(), tweetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentPayloads(comments))
}

func (h *httpHandler) handleLegacyComments(c *gin.Context) {
	comments, err := h.feed.FindComments(c.Request.Context(), c.Query("tweetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCommentPayloads(comments))
}

func (h *httpHandler) handleCreateTweet(c *gin.Context) {
	author, ok := requestUser(c)
	if !ok {
		return
	}
	var request createTweetRequest
	if !bindJSON(c, &request) {
		return
	}
	post, err := h.feed.CreatePost(c.Request.Context(), author, feed.CreatePost{
		Body:          request.Body,
		IsComment:     request.IsComment,
		ParentTweetID: request.ParentTweetID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPostPayload(post))
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(user))
}

// handleRegisterUser binds the caller's verified subject when the body names no external id.
func (h *httpHandler) handleRegisterUser(c *gin.Context) {
	var request registerUserRequest
	if !bindJSON(c, &request) {
		return
	}
	externalID := request.ExternalID
	if externalID == "" {
		externalID = request.SupabaseUID
	}
	if identity, ok := currentIdentity(c); ok && externalID == "" {
		externalID = identity.Subject
	}
	user, err := h.users.Register(c.Request.Context(), users.Registration{
		Username:   request.Username,
		Bio:        request.Bio,
		ExternalID: externalID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserPayload(user))
}

func newFeedEntryPayload(post feed.Post) feedEntryPayload {
	return feedEntryPayload{
		ID:          post.Tweet.ID,
		Body:        post.Tweet.Body,
		Likes:       post.Tweet.Likes,
		Replies:     post.Tweet.Replies,
		Restacks:    post.Tweet.Restacks,
		Saves:       post.Tweet.Saves,
		UserID:      post.Author.UserID,
		ProfileName: post.Author.ProfileName,
		ProfileURL:  post.Author.ProfileURL,
	}
}

func newPostPayload(post feed.Post) postPayload {
	return postPayload{
		feedEntryPayload: newFeedEntryPayload(post),
		IsComment:        post.Tweet.IsComment,
		ParentTweetID:    post.Tweet.ParentTweetID,
		CreatedAt:        post.Tweet.CreatedAt,
	}
}

func newCommentPayloads(comments []feed.Comment) []commentPayload {
	response := make([]commentPayload, 0, len(comments))
	for _, comment := range comments {
		payload := commentPayload{
			ID:      comment.Tweet.ID,
			Body:    comment.Tweet.Body,
			Likes:   comment.Tweet.Likes,
			Replies: comment.Tweet.Replies,
		}
		if comment.Author != nil {
			userID := comment.Author.UserID
			profileName := comment.Author.ProfileName
			payload.UserID = &userID
			payload.ProfileName = &profileName
			payload.ProfileURL = comment.Author.ProfileURL
		}
		response = append(response, payload)
	}
	return response
}

func newUserPayload(user users.User) userPayload {
	return userPayload{
		ID:         user.ID,
		Username:   user.Username,
		Bio:        user.Bio,
		ProfileURL: user.ProfileURL,
	}
}
