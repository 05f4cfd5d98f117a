package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opResolve  = "users.resolve"
	opRegister = "users.register"
	opGet      = "users.get"
	opLookup   = "users.lookup"

	placeholderPrefix    = "user_"
	subjectPrefixLength  = 8
	suffixedBaseMaxRunes = 40
)

var errMissingDatabase = errors.New("users: database connection required")

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service maps verified identities onto local users and manages explicit registration.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
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
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Registration is the payload of an explicit sign-up.
type Registration struct {
	Username   string
	Bio        string
	ExternalID string
}

// Resolve returns the local user bound to the verified identity, creating one on first sight.
// Business rules never reject the caller: a taken username falls back to a derived alternative,
// and a concurrent first sight of the same subject returns the row that won the insert.
func (s *Service) Resolve(ctx context.Context, identity auth.Identity) (User, error) {
	subject := normalize(identity.Subject)
	if subject == "" {
		return User{}, apperrors.New(apperrors.KindUnauthenticated, opResolve, "missing_subject", "identity subject required", auth.ErrMissingSubject)
	}

	existing, found, err := s.findByExternalID(ctx, subject)
	if err != nil {
		s.logError(opResolve, "lookup_failed", err, zap.String("subject", subject))
		return User{}, apperrors.Internal(opResolve, "lookup_failed", err)
	}
	if found {
		return existing, nil
	}

	var lastErr error
	for _, candidate := range usernameCandidates(identity) {
		taken, err := s.usernameTaken(ctx, candidate)
		if err != nil {
			s.logError(opResolve, "username_check_failed", err, zap.String("username", candidate))
			return User{}, apperrors.Internal(opResolve, "username_check_failed", err)
		}
		if taken {
			continue
		}

		externalID := subject
		user := User{
			Username:   candidate,
			ExternalID: &externalID,
			CreatedAt:  s.now().UTC(),
		}
		createErr := s.db.WithContext(ctx).Create(&user).Error
		if createErr == nil {
			s.logger.Info("user created from identity",
				zap.Uint("user_id", user.ID),
				zap.String("username", user.Username))
			return user, nil
		}

		winner, found, lookupErr := s.findByExternalID(ctx, subject)
		if lookupErr == nil && found {
			return winner, nil
		}
		lastErr = createErr
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no free username for subject %s", subject)
	}
	s.logError(opResolve, "create_failed", lastErr, zap.String("subject", subject))
	return User{}, apperrors.Internal(opResolve, "create_failed", lastErr)
}

// Register creates a user from an explicit sign-up payload.
func (s *Service) Register(ctx context.Context, registration Registration) (User, error) {
	username := normalize(registration.Username)
	length := utf8.RuneCountInString(username)
	if length == 0 || length > maxUsernameLength {
		return User{}, apperrors.New(apperrors.KindValidation, opRegister, "invalid_username",
			fmt.Sprintf("username must be between 1 and %d characters", maxUsernameLength), nil)
	}
	externalID := optionalString(registration.ExternalID)

	if err := s.checkRegistrationConflicts(ctx, username, externalID); err != nil {
		return User{}, err
	}

	user := User{
		Username:   username,
		Bio:        optionalString(registration.Bio),
		ExternalID: externalID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if conflictErr := s.checkRegistrationConflicts(ctx, username, externalID); conflictErr != nil {
			return User{}, conflictErr
		}
		s.logError(opRegister, "insert_failed", err, zap.String("username", username))
		return User{}, apperrors.Internal(opRegister, "insert_failed", err)
	}
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id uint) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperrors.New(apperrors.KindNotFound, opGet, "user_not_found", "User not found", err)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Uint("user_id", id))
		return User{}, apperrors.Internal(opGet, "query_failed", err)
	}
	return user, nil
}

// LookupByIDs loads the users for the given ids. Missing ids are absent from the result.
func (s *Service) LookupByIDs(ctx context.Context, ids []uint) (map[uint]User, error) {
	result := make(map[uint]User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var found []User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		s.logError(opLookup, "query_failed", err, zap.Int("count", len(ids)))
		return nil, apperrors.Internal(opLookup, "query_failed", err)
	}
	for _, user := range found {
		result[user.ID] = user
	}
	return result, nil
}

// DeriveUsername computes the default username for an identity: the local part of the email,
// or "user_" followed by the first eight characters of the subject.
func DeriveUsername(identity auth.Identity) string {
	email := normalize(identity.Email)
	if email != "" {
		localPart := normalize(strings.SplitN(email, "@", 2)[0])
		if localPart != "" {
			return truncateRunes(localPart, maxUsernameLength)
		}
	}
	return placeholderPrefix + truncateRunes(normalize(identity.Subject), subjectPrefixLength)
}

func usernameCandidates(identity auth.Identity) []string {
	base := DeriveUsername(identity)
	subjectPrefix := truncateRunes(normalize(identity.Subject), subjectPrefixLength)
	candidates := []string{base}
	if suffixed := truncateRunes(base, suffixedBaseMaxRunes) + "_" + subjectPrefix; suffixed != base {
		candidates = append(candidates, suffixed)
	}
	candidates = append(candidates, placeholderPrefix+strings.ReplaceAll(uuid.NewString(), "-", "")[:subjectPrefixLength])
	return candidates
}

func (s *Service) checkRegistrationConflicts(ctx context.Context, username string, externalID *string) error {
	taken, err := s.usernameTaken(ctx, username)
	if err != nil {
		s.logError(opRegister, "username_check_failed", err, zap.String("username", username))
		return apperrors.Internal(opRegister, "username_check_failed", err)
	}
	if taken {
		return apperrors.New(apperrors.KindConflict, opRegister, "username_taken", "Username already taken", nil)
	}
	if externalID == nil {
		return nil
	}
	_, found, err := s.findByExternalID(ctx, *externalID)
	if err != nil {
		s.logError(opRegister, "external_id_check_failed", err)
		return apperrors.Internal(opRegister, "external_id_check_failed", err)
	}
	if found {
		return apperrors.New(apperrors.KindConflict, opRegister, "external_id_taken", "Identity already registered", nil)
	}
	return nil
}

func (s *Service) findByExternalID(ctx context.Context, externalID string) (User, bool, error) {
	var user User
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

func (s *Service) usernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
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
	s.logger.Error("users service error", attrs...)
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
