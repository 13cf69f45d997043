package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/ruralpay/collections/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) (*Store, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, 24*time.Hour, 5*time.Minute)
	store.now = func() time.Time { return time.UnixMilli(1_700_000_000_250) }
	return store, mock
}

func TestStore_Blacklist(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectSet("blacklist:jti-1", "1", 24*time.Hour).SetVal("OK")
	assert.NoError(t, store.Blacklist(ctx, "jti-1"))

	mock.ExpectExists("blacklist:jti-1").SetVal(1)
	revoked, err := store.IsBlacklisted(ctx, "jti-1")
	assert.NoError(t, err)
	assert.True(t, revoked)

	mock.ExpectExists("blacklist:jti-2").SetVal(0)
	revoked, err = store.IsBlacklisted(ctx, "jti-2")
	assert.NoError(t, err)
	assert.False(t, revoked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RevokeAllForCompany(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	t.Run("records revocation epoch", func(t *testing.T) {
		mock.ExpectSet("session:revoked:co-1", int64(1_700_000_000_250), 24*time.Hour).SetVal("OK")

		assert.NoError(t, store.RevokeAllForCompany(ctx, "co-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("surfaces redis failures", func(t *testing.T) {
		mock.ExpectSet("session:revoked:co-1", int64(1_700_000_000_250), 24*time.Hour).SetErr(errors.New("down"))

		err := store.RevokeAllForCompany(ctx, "co-1")
		assert.ErrorContains(t, err, "revoke sessions for company co-1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_RevokedBefore(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectGet("session:revoked:co-1").SetVal("1700000000250")
	revoked, err := store.RevokedBefore(ctx, "co-1", time.Unix(1_699_999_000, 0))
	assert.NoError(t, err)
	assert.True(t, revoked)

	mock.ExpectGet("session:revoked:co-1").SetVal("1700000000250")
	revoked, err = store.RevokedBefore(ctx, "co-1", time.UnixMilli(1_700_000_000_100))
	assert.NoError(t, err)
	assert.True(t, revoked, "issued earlier in the same second")

	mock.ExpectGet("session:revoked:co-1").SetVal("1700000000250")
	revoked, err = store.RevokedBefore(ctx, "co-1", time.UnixMilli(1_700_000_000_600))
	assert.NoError(t, err)
	assert.False(t, revoked, "issued later in the same second")

	mock.ExpectGet("session:revoked:co-2").RedisNil()
	revoked, err = store.RevokedBefore(ctx, "co-2", time.Unix(1, 0))
	assert.NoError(t, err)
	assert.False(t, revoked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompanyStatusCache(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectGet("company:status:co-1").RedisNil()
	_, ok := store.CompanyStatus(ctx, "co-1")
	assert.False(t, ok)

	mock.ExpectSet("company:status:co-1", "ACTIVE", 5*time.Minute).SetVal("OK")
	store.CacheCompanyStatus(ctx, "co-1", models.CompanyActive)

	mock.ExpectGet("company:status:co-1").SetVal("ACTIVE")
	status, ok := store.CompanyStatus(ctx, "co-1")
	assert.True(t, ok)
	assert.Equal(t, models.CompanyActive, status)

	mock.ExpectDel("company:status:co-1").SetVal(1)
	assert.NoError(t, store.InvalidateCompanyStatus(ctx, "co-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithoutRedis(t *testing.T) {
	store := NewStore(nil, time.Hour, time.Minute)
	ctx := context.Background()

	assert.NoError(t, store.Blacklist(ctx, "jti"))
	assert.NoError(t, store.RevokeAllForCompany(ctx, "co-1"))
	revoked, err := store.RevokedBefore(ctx, "co-1", time.Now())
	assert.NoError(t, err)
	assert.False(t, revoked)
	_, ok := store.CompanyStatus(ctx, "co-1")
	assert.False(t, ok)
}
