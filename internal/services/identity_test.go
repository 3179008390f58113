package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep-bknd/internal/database"
)

const testUserID = "5f0c7c1e-8a59-4d8e-9f43-6e2f1a1b2c3d"

func TestCheckTokenVersion(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	svc := NewIdentityService(database.Wrap(sqldb))
	ctx := context.Background()

	mock.ExpectQuery(`FROM "users" AS "user" WHERE \(id = '` + testUserID + `'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "token_version"}).AddRow(testUserID, "a@b.c", 4))
	ok, err := svc.CheckTokenVersion(ctx, testUserID, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(`FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "token_version"}).AddRow(testUserID, "a@b.c", 5))
	ok, err = svc.CheckTokenVersion(ctx, testUserID, 4)
	require.NoError(t, err)
	assert.False(t, ok, "older versions are revoked")

	mock.ExpectQuery(`FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	ok, err = svc.CheckTokenVersion(ctx, testUserID, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.CheckTokenVersion(ctx, "not-a-uuid", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	svc := NewIdentityService(database.Wrap(sqldb))

	mock.ExpectQuery(`FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).AddRow(testUserID, "owner@example.com", "Owner"))

	u, err := svc.GetUser(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", u.Email)
	assert.Equal(t, testUserID, u.ID.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
