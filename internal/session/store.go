package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/collections/internal/models"
)

// Store keeps session state in Redis: revoked token ids, a per-company
// revocation epoch and a short lived cache of company status.
//
// A nil client turns every write into a no-op and every read into a miss.
type Store struct {
	redis     *redis.Client
	tokenTTL  time.Duration
	statusTTL time.Duration
	now       func() time.Time
}

func NewStore(client *redis.Client, tokenTTL, statusTTL time.Duration) *Store {
	return &Store{
		redis:     client,
		tokenTTL:  tokenTTL,
		statusTTL: statusTTL,
		now:       time.Now,
	}
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("blacklist:%s", tokenID)
}

func revokedKey(companyID string) string {
	return fmt.Sprintf("session:revoked:%s", companyID)
}

func statusKey(companyID string) string {
	return fmt.Sprintf("company:status:%s", companyID)
}

// Blacklist revokes a single token until it would have expired anyway.
func (s *Store) Blacklist(ctx context.Context, tokenID string) error {
	if s.redis == nil || tokenID == "" {
		return nil
	}
	return s.redis.Set(ctx, blacklistKey(tokenID), "1", s.tokenTTL).Err()
}

func (s *Store) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, blacklistKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeAllForCompany invalidates every token issued to the company's users
// up to now. Tokens carry their issue time in milliseconds, so one key covers
// all sessions and a login right after the revocation stays valid.
func (s *Store) RevokeAllForCompany(ctx context.Context, companyID string) error {
	if s.redis == nil {
		log.Printf("[SESSION] Redis unavailable, sessions for company %s not revoked", companyID)
		return nil
	}
	epoch := s.now().UnixMilli()
	if err := s.redis.Set(ctx, revokedKey(companyID), epoch, s.tokenTTL).Err(); err != nil {
		return fmt.Errorf("revoke sessions for company %s: %w", companyID, err)
	}
	log.Printf("[SESSION] Revoked all sessions for company %s", companyID)
	return nil
}

// RevokedBefore reports whether a token issued at issuedAt has been revoked
// by a company wide revocation.
func (s *Store) RevokedBefore(ctx context.Context, companyID string, issuedAt time.Time) (bool, error) {
	if s.redis == nil || companyID == "" {
		return false, nil
	}
	raw, err := s.redis.Get(ctx, revokedKey(companyID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("corrupt revocation epoch for company %s: %w", companyID, err)
	}
	return issuedAt.UnixMilli() <= epoch, nil
}

// CompanyStatus returns the cached status and whether it was present.
func (s *Store) CompanyStatus(ctx context.Context, companyID string) (models.CompanyStatus, bool) {
	if s.redis == nil {
		return "", false
	}
	raw, err := s.redis.Get(ctx, statusKey(companyID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[SESSION] Status cache read failed for company %s: %v", companyID, err)
		}
		return "", false
	}
	return models.CompanyStatus(raw), true
}

func (s *Store) CacheCompanyStatus(ctx context.Context, companyID string, status models.CompanyStatus) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, statusKey(companyID), string(status), s.statusTTL).Err(); err != nil {
		log.Printf("[SESSION] Status cache write failed for company %s: %v", companyID, err)
	}
}

func (s *Store) InvalidateCompanyStatus(ctx context.Context, companyID string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, statusKey(companyID)).Err()
}
