package users

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	service, err := NewService(ServiceConfig{Database: gormDB})
	require.NoError(t, err)
	return service, mock
}

func TestResolveSurfacesStorageFailureAsInternal(t *testing.T) {
	service, mock := setupMockService(t)
	storageErr := errors.New("connection reset by peer")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE external_id = $1`)).
		WillReturnError(storageErr)

	_, err := service.Resolve(context.Background(), auth.Identity{Subject: "subject-1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	assert.ErrorIs(t, err, storageErr)

	var serviceErr *apperrors.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "users.resolve.lookup_failed", serviceErr.Code())
	assert.NotContains(t, serviceErr.Message(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterReportsConflictFromExistingUsername(t *testing.T) {
	service, mock := setupMockService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "users" WHERE username = $1`)).
		WithArgs("taken").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := service.Register(context.Background(), Registration{Username: "taken"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}
