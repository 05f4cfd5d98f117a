// Package seed populates a store with fake but valid data through the domain services.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/feed"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"
)

var errMissingService = errors.New("seed: users, feed and flashcards services are required")

// UserRegistrar creates users.
type UserRegistrar interface {
	Register(ctx context.Context, registration users.Registration) (users.User, error)
}

// PostWriter creates posts and comments.
type PostWriter interface {
	CreatePost(ctx context.Context, author users.User, request feed.CreatePost) (feed.Post, error)
}

// StudyWriter creates decks and cards and records reviews.
type StudyWriter interface {
	CreateDeck(ctx context.Context, userID uint, input flashcards.DeckInput) (flashcards.DeckSummary, error)
	CreateCard(ctx context.Context, userID, deckID uint, input flashcards.CardInput) (flashcards.CardView, error)
	ReviewCard(ctx context.Context, userID, cardID uint, interval flashcards.Interval) (flashcards.ReviewResult, error)
}

// Counts sizes one seeding run.
type Counts struct {
	Users           int
	PostsPerUser    int
	CommentsPerPost int
	DecksPerUser    int
	CardsPerDeck    int
}

// DefaultCounts is a small but representative data set.
var DefaultCounts = Counts{
	Users:           5,
	PostsPerUser:    4,
	CommentsPerPost: 2,
	DecksPerUser:    2,
	CardsPerDeck:    6,
}

// Config describes the dependencies of a Seeder.
type Config struct {
	Users      UserRegistrar
	Posts      PostWriter
	Flashcards StudyWriter
	Seed       int64
	Logger     *zap.Logger
}

// Summary reports what a run created.
type Summary struct {
	Users    int
	Posts    int
	Comments int
	Decks    int
	Cards    int
	Reviews  int
}

// Seeder writes deterministic fake data for a given seed value.
type Seeder struct {
	users      UserRegistrar
	posts      PostWriter
	flashcards StudyWriter
	faker      *gofakeit.Faker
	logger     *zap.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(cfg Config) (*Seeder, error) {
	if cfg.Users == nil || cfg.Posts == nil || cfg.Flashcards == nil {
		return nil, errMissingService
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		users:      cfg.Users,
		posts:      cfg.Posts,
		flashcards: cfg.Flashcards,
		faker:      gofakeit.New(cfg.Seed),
		logger:     logger,
	}, nil
}

// Run creates users, then their posts with comments from other users, then decks with cards,
// reviewing roughly half of the cards once.
func (s *Seeder) Run(ctx context.Context, counts Counts) (Summary, error) {
	var summary Summary

	authors := make([]users.User, 0, counts.Users)
	for index := 0; index < counts.Users; index++ {
		user, err := s.users.Register(ctx, users.Registration{
			Username: fmt.Sprintf("%s%d", s.faker.Username(), index),
			Bio:      s.faker.Sentence(8),
		})
		if err != nil {
			return summary, fmt.Errorf("register user %d: %w", index, err)
		}
		authors = append(authors, user)
		summary.Users++
	}

	for authorIndex, author := range authors {
		for postIndex := 0; postIndex < counts.PostsPerUser; postIndex++ {
			post, err := s.posts.CreatePost(ctx, author, feed.CreatePost{Body: s.faker.Sentence(s.faker.Number(4, 16))})
			if err != nil {
				return summary, fmt.Errorf("create post: %w", err)
			}
			summary.Posts++

			parentID := post.Tweet.ID
			for commentIndex := 0; commentIndex < counts.CommentsPerPost; commentIndex++ {
				commenter := authors[(authorIndex+commentIndex+1)%len(authors)]
				_, err := s.posts.CreatePost(ctx, commenter, feed.CreatePost{
					Body:          s.faker.Sentence(s.faker.Number(3, 10)),
					IsComment:     true,
					ParentTweetID: &parentID,
				})
				if err != nil {
					return summary, fmt.Errorf("create comment: %w", err)
				}
				summary.Comments++
			}
		}
	}

	for _, owner := range authors {
		for deckIndex := 0; deckIndex < counts.DecksPerUser; deckIndex++ {
			name := s.faker.Noun() + " " + s.faker.Noun()
			description := s.faker.Sentence(10)
			deck, err := s.flashcards.CreateDeck(ctx, owner.ID, flashcards.DeckInput{Name: &name, Description: &description})
			if err != nil {
				return summary, fmt.Errorf("create deck: %w", err)
			}
			summary.Decks++

			for cardIndex := 0; cardIndex < counts.CardsPerDeck; cardIndex++ {
				front := s.faker.Question()
				back := s.faker.Sentence(6)
				card, err := s.flashcards.CreateCard(ctx, owner.ID, deck.Deck.ID, flashcards.CardInput{Front: &front, Back: &back})
				if err != nil {
					return summary, fmt.Errorf("create card: %w", err)
				}
				summary.Cards++

				if !s.faker.Bool() {
					continue
				}
				interval, err := flashcards.NewInterval(s.faker.Number(1, 30), s.faker.RandomString([]string{"min", "hr", "day"}))
				if err != nil {
					return summary, err
				}
				if _, err := s.flashcards.ReviewCard(ctx, owner.ID, card.Card.ID, interval); err != nil {
					return summary, fmt.Errorf("review card: %w", err)
				}
				summary.Reviews++
			}
		}
	}

	s.logger.Info("seed completed",
		zap.Int("users", summary.Users),
		zap.Int("posts", summary.Posts),
		zap.Int("comments", summary.Comments),
		zap.Int("decks", summary.Decks),
		zap.Int("cards", summary.Cards),
		zap.Int("reviews", summary.Reviews))
	return summary, nil
}
