package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ruralpay/collections/internal/config"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"golang.org/x/crypto/argon2"
)

const saltLength = 16

// Claims is the decoded form of a session token.
type Claims struct {
	TokenID   string
	Identity  scope.Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssueToken signs a session token for id. Every token gets its own jti so it
// can be revoked on its own.
func IssueToken(cfg config.JWTConfig, id scope.Identity, now time.Time) (string, *Claims, error) {
	claims := &Claims{
		TokenID:   uuid.NewString(),
		Identity:  id,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(cfg.ExpiryHours) * time.Hour),
	}

	branches := id.Branches
	if branches == nil {
		branches = []string{}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti":        claims.TokenID,
		"user_id":    id.UserID,
		"company_id": id.CompanyID,
		"role":       string(id.Role),
		"branches":   branches,
		"iat":        now.Unix(),
		"iat_ms":     now.UnixMilli(),
		"exp":        claims.ExpiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(cfg.SecretKey))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseToken verifies the signature and expiry of raw and decodes its claims.
func ParseToken(secret, raw string) (*Claims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	}

	claims := &Claims{}
	claims.TokenID, _ = mc["jti"].(string)
	claims.Identity.UserID, _ = mc["user_id"].(string)
	claims.Identity.CompanyID, _ = mc["company_id"].(string)
	role, _ := mc["role"].(string)
	claims.Identity.Role = models.Role(role)
	if list, ok := mc["branches"].([]any); ok {
		for _, b := range list {
			if s, ok := b.(string); ok {
				claims.Identity.Branches = append(claims.Identity.Branches, s)
			}
		}
	}
	if ms, ok := mc["iat_ms"].(float64); ok {
		claims.IssuedAt = time.UnixMilli(int64(ms))
	} else if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if claims.TokenID == "" || claims.Identity.UserID == "" || !claims.Identity.Role.Valid() {
		return nil, errors.Join(models.ErrUnauthorized, errors.New("token is missing required claims"))
	}
	return claims, nil
}

// HashPassword derives an argon2id hash stored as base64(salt)$base64(hash).
func HashPassword(password string, cfg config.Argon2Config) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string, cfg config.Argon2Config) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}
