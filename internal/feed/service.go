package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListFeed     = "feed.list_feed"
	opGetPost      = "feed.get_post"
	opListComments = "feed.list_comments"
	opCreatePost   = "feed.create_post"

	legacyEqualityPrefix = "eq."
)

var (
	errMissingDatabase  = errors.New("feed: database connection required")
	errMissingDirectory = errors.New("feed: author directory required")
)

// AuthorDirectory resolves post owners by local id.
type AuthorDirectory interface {
	LookupByIDs(ctx context.Context, ids []uint) (map[uint]users.User, error)
}

// PageCache stores serialized feed pages. Implementations treat their own failures as misses.
// Load reports the cache generation it consulted; Save must be given that generation so a page
// read before an Invalidate is never stored as current.
type PageCache interface {
	Load(ctx context.Context, offset, limit int) (payload []byte, generation int64, hit bool)
	Save(ctx context.Context, generation int64, offset, limit int, payload []byte)
	Invalidate(ctx context.Context)
}

// ServiceConfig describes the dependencies of the feed service.
type ServiceConfig struct {
	Database *gorm.DB
	Authors  AuthorDirectory
	Cache    PageCache
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service reads and writes posts and their threaded comments.
type Service struct {
	db      *gorm.DB
	authors AuthorDirectory
	cache   PageCache
	now     func() time.Time
	logger  *zap.Logger
}

// NewService constructs the feed service. The page cache is optional.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Authors == nil {
		return nil, errMissingDirectory
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
		authors: cfg.Authors,
		cache:   cfg.Cache,
		now:     clock,
		logger:  logger,
	}, nil
}

// ListFeed returns root posts newest first.
func (s *Service) ListFeed(ctx context.Context, page Page) ([]Post, error) {
	page = NewPage(page.Offset, page.Limit)
	cached, generation, ok := s.loadCachedPage(ctx, page)
	if ok {
		return cached, nil
	}

	var tweets []Tweet
	err := s.db.WithContext(ctx).
		Where("is_comment = ?", false).
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&tweets).Error
	if err != nil {
		s.logError(opListFeed, "query_failed", err, zap.Int("offset", page.Offset), zap.Int("limit", page.Limit))
		return nil, apperrors.Internal(opListFeed, "query_failed", err)
	}

	authors, err := s.lookupAuthors(ctx, tweets)
	if err != nil {
		s.logError(opListFeed, "author_lookup_failed", err)
		return nil, apperrors.Internal(opListFeed, "author_lookup_failed", err)
	}

	posts := make([]Post, 0, len(tweets))
	for _, tweet := range tweets {
		posts = append(posts, Post{Tweet: tweet, Author: authorOrPlaceholder(authors, tweet.UserID)})
	}
	s.saveCachedPage(ctx, generation, page, posts)
	return posts, nil
}

// GetPost returns one post by id.
func (s *Service) GetPost(ctx context.Context, id uint) (Post, error) {
	tweet, found, err := s.findTweet(ctx, s.db, id)
	if err != nil {
		s.logError(opGetPost, "query_failed", err, zap.Uint("tweet_id", id))
		return Post{}, apperrors.Internal(opGetPost, "query_failed", err)
	}
	if !found {
		return Post{}, apperrors.New(apperrors.KindNotFound, opGetPost, "tweet_not_found", "Tweet not found", nil)
	}
	authors, err := s.lookupAuthors(ctx, []Tweet{tweet})
	if err != nil {
		s.logError(opGetPost, "author_lookup_failed", err, zap.Uint("tweet_id", id))
		return Post{}, apperrors.Internal(opGetPost, "author_lookup_failed", err)
	}
	return Post{Tweet: tweet, Author: authorOrPlaceholder(authors, tweet.UserID)}, nil
}

// ListComments returns the comments under a post, oldest first.
func (s *Service) ListComments(ctx context.Context, parentID uint) ([]Comment, error) {
	_, found, err := s.findTweet(ctx, s.db, parentID)
	if err != nil {
		s.logError(opListComments, "parent_query_failed", err, zap.Uint("tweet_id", parentID))
		return nil, apperrors.Internal(opListComments, "parent_query_failed", err)
	}
	if !found {
		return nil, apperrors.New(apperrors.KindNotFound, opListComments, "tweet_not_found", "Tweet not found", nil)
	}
	return s.commentsFor(ctx, parentID)
}

// FindComments is the lenient lookup behind the legacy query form, where the parent id
// arrives as "eq.<id>" or "<id>". A missing, malformed or unknown id yields no comments.
func (s *Service) FindComments(ctx context.Context, rawParentID string) ([]Comment, error) {
	parentID, ok := parseLegacyID(rawParentID)
	if !ok {
		return []Comment{}, nil
	}
	comments, err := s.ListComments(ctx, parentID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return []Comment{}, nil
	}
	return comments, err
}

// CreatePost stores a root post or a comment for the author. A comment bumps its parent's
// reply counter by one in the same transaction.
func (s *Service) CreatePost(ctx context.Context, author users.User, request CreatePost) (Post, error) {
	if err := validateCreatePost(request); err != nil {
		return Post{}, err
	}

	tweet := Tweet{
		Body:          request.Body,
		IsComment:     request.IsComment,
		ParentTweetID: request.ParentTweetID,
		UserID:        author.ID,
		CreatedAt:     s.now().UTC(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if request.ParentTweetID != nil {
			parentID := *request.ParentTweetID
			_, found, err := s.findTweet(ctx, tx, parentID)
			if err != nil {
				s.logError(opCreatePost, "parent_query_failed", err, zap.Uint("parent_tweet_id", parentID))
				return apperrors.Internal(opCreatePost, "parent_query_failed", err)
			}
			if !found {
				return apperrors.New(apperrors.KindNotFound, opCreatePost, "parent_not_found", "Parent tweet not found", nil)
			}
			update := tx.Model(&Tweet{}).Where("id = ?", parentID).
				UpdateColumn("replies", gorm.Expr("replies + ?", 1))
			if update.Error != nil {
				s.logError(opCreatePost, "reply_increment_failed", update.Error, zap.Uint("parent_tweet_id", parentID))
				return apperrors.Internal(opCreatePost, "reply_increment_failed", update.Error)
			}
		}
		if err := tx.Create(&tweet).Error; err != nil {
			s.logError(opCreatePost, "insert_failed", err, zap.Uint("user_id", author.ID))
			return apperrors.Internal(opCreatePost, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Post{}, txErr
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return Post{Tweet: tweet, Author: authorFromUser(author)}, nil
}

func validateCreatePost(request CreatePost) error {
	length := utf8.RuneCountInString(request.Body)
	if length == 0 || length > maxBodyLength || strings.TrimSpace(request.Body) == "" {
		return apperrors.New(apperrors.KindValidation, opCreatePost, "invalid_body",
			fmt.Sprintf("body must be between 1 and %d characters", maxBodyLength), nil)
	}
	if request.IsComment && request.ParentTweetID == nil {
		return apperrors.New(apperrors.KindValidation, opCreatePost, "missing_parent",
			"comment requires parent_tweet_id", nil)
	}
	if !request.IsComment && request.ParentTweetID != nil {
		return apperrors.New(apperrors.KindValidation, opCreatePost, "unexpected_parent",
			"parent_tweet_id is only allowed on comments", nil)
	}
	return nil
}

func (s *Service) commentsFor(ctx context.Context, parentID uint) ([]Comment, error) {
	var tweets []Tweet
	err := s.db.WithContext(ctx).
		Where("parent_tweet_id = ? AND is_comment = ?", parentID, true).
		Order("created_at ASC").
		Order("id ASC").
		Find(&tweets).Error
	if err != nil {
		s.logError(opListComments, "query_failed", err, zap.Uint("tweet_id", parentID))
		return nil, apperrors.Internal(opListComments, "query_failed", err)
	}
	authors, err := s.lookupAuthors(ctx, tweets)
	if err != nil {
		s.logError(opListComments, "author_lookup_failed", err, zap.Uint("tweet_id", parentID))
		return nil, apperrors.Internal(opListComments, "author_lookup_failed", err)
	}

	comments := make([]Comment, 0, len(tweets))
	for _, tweet := range tweets {
		comment := Comment{Tweet: tweet}
		if user, ok := authors[tweet.UserID]; ok {
			author := authorFromUser(user)
			comment.Author = &author
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

func (s *Service) findTweet(ctx context.Context, db *gorm.DB, id uint) (Tweet, bool, error) {
	var tweet Tweet
	err := db.WithContext(ctx).Where("id = ?", id).Take(&tweet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Tweet{}, false, nil
	}
	if err != nil {
		return Tweet{}, false, err
	}
	return tweet, true, nil
}

func (s *Service) lookupAuthors(ctx context.Context, tweets []Tweet) (map[uint]users.User, error) {
	seen := make(map[uint]struct{}, len(tweets))
	ids := make([]uint, 0, len(tweets))
	for _, tweet := range tweets {
		if _, ok := seen[tweet.UserID]; ok {
			continue
		}
		seen[tweet.UserID] = struct{}{}
		ids = append(ids, tweet.UserID)
	}
	return s.authors.LookupByIDs(ctx, ids)
}

func (s *Service) loadCachedPage(ctx context.Context, page Page) ([]Post, int64, bool) {
	if s.cache == nil {
		return nil, 0, false
	}
	payload, generation, ok := s.cache.Load(ctx, page.Offset, page.Limit)
	if !ok {
		return nil, generation, false
	}
	var posts []Post
	if err := json.Unmarshal(payload, &posts); err != nil {
		s.logger.Warn("discarding unreadable cached feed page", zap.Error(err))
		return nil, generation, false
	}
	return posts, generation, true
}

func (s *Service) saveCachedPage(ctx context.Context, generation int64, page Page, posts []Post) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(posts)
	if err != nil {
		s.logger.Warn("feed page not cached", zap.Error(err))
		return
	}
	s.cache.Save(ctx, generation, page.Offset, page.Limit, payload)
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
	s.logger.Error("feed service error", attrs...)
}

func parseLegacyID(raw string) (uint, bool) {
	value := strings.TrimPrefix(strings.TrimSpace(raw), legacyEqualityPrefix)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return uint(parsed), true
}

func authorFromUser(user users.User) Author {
	return Author{UserID: user.Username, ProfileName: user.Username, ProfileURL: user.ProfileURL}
}

func authorOrPlaceholder(authors map[uint]users.User, userID uint) Author {
	if user, ok := authors[userID]; ok {
		return authorFromUser(user)
	}
	return Author{UserID: unknownUserID, ProfileName: unknownProfileName}
}
