package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	identityContextKey  = "imitation_identity"
	userContextKey      = "imitation_user"
	requestIDContextKey = "imitation_request_id"

	requestIDHeader = "X-Request-ID"
	appName         = "imitation-api"
)

var (
	errMissingVerifier   = errors.New("token verifier dependency required")
	errMissingUsers      = errors.New("users service dependency required")
	errMissingFeed       = errors.New("feed service dependency required")
	errMissingFlashcards = errors.New("flashcards service dependency required")
)

// Dependencies wires the services behind the HTTP API. Metrics is optional.
type Dependencies struct {
	Verifier    auth.Verifier
	Users       *users.Service
	Feed        *feed.Service
	Flashcards  *flashcards.Service
	Metrics     *metrics.Registry
	Logger      *zap.Logger
	CORSOrigins []string
}

// NewHTTPHandler builds the gin engine serving every route.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Feed == nil {
		return nil, errMissingFeed
	}
	if deps.Flashcards == nil {
		return nil, errMissingFlashcards
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		verifier:   deps.Verifier,
		users:      deps.Users,
		feed:       deps.Feed,
		flashcards: deps.Flashcards,
		logger:     logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.accessLog)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(corsMiddleware(deps.CORSOrigins))
	router.Use(handler.identify)

	router.GET("/", handler.handleRoot)
	router.GET("/health", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/home", handler.handleHomeFeed)
	router.GET("/tweet/:tweetId", handler.handleGetTweet)
	router.GET("/tweet/:tweetId/comments", handler.handleListComments)
	router.GET("/comments", handler.handleLegacyComments)
	router.GET("/user/:userId", handler.handleGetUser)
	router.POST("/user", handler.handleRegisterUser)

	protected := router.Group("/")
	protected.Use(handler.requireUser)
	protected.POST("/tweet", handler.handleCreateTweet)
	protected.POST("/create-tweet/user/:userId", handler.handleCreateTweet)

	protected.GET("/decks", handler.handleListDecks)
	protected.POST("/decks", handler.handleCreateDeck)
	protected.GET("/decks/:deckId", handler.handleGetDeck)
	protected.PUT("/decks/:deckId", handler.handleUpdateDeck)
	protected.DELETE("/decks/:deckId", handler.handleDeleteDeck)
	protected.GET("/decks/:deckId/cards", handler.handleListCards)
	protected.POST("/decks/:deckId/cards", handler.handleCreateCard)
	protected.GET("/decks/:deckId/study", handler.handleStudy)
	protected.GET("/decks/:deckId/study-all", handler.handleStudyAll)
	protected.PUT("/cards/:cardId", handler.handleUpdateCard)
	protected.DELETE("/cards/:cardId", handler.handleDeleteCard)
	protected.POST("/cards/:cardId/review", handler.handleReviewCard)

	return router, nil
}

type httpHandler struct {
	verifier   auth.Verifier
	users      *users.Service
	feed       *feed.Service
	flashcards *flashcards.Service
	logger     *zap.Logger
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || containsWildcard(origins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (h *httpHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "app": appName})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
