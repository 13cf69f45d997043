package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ruralpay/collections/internal/config"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
)

// TokenStore revokes individual session tokens.
type TokenStore interface {
	Blacklist(ctx context.Context, tokenID string) error
}

type AuthService struct {
	db     *sql.DB
	tokens TokenStore
	jwt    config.JWTConfig
	argon  config.Argon2Config
	now    func() time.Time
}

// LoginResult represents the authentication response
// @Description Authentication response structure
type LoginResult struct {
	Token     string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

func NewAuthService(db *sql.DB, tokens TokenStore, jwtCfg config.JWTConfig, argonCfg config.Argon2Config) *AuthService {
	return &AuthService{
		db:     db,
		tokens: tokens,
		jwt:    jwtCfg,
		argon:  argonCfg,
		now:    time.Now,
	}
}

var errInvalidCredentials = fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)

// Login verifies the password and issues a session token. Users of a company
// that is not ACTIVE are turned away; platform administrators are not tied to
// a company.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	log.Printf("[AUTH] Login request for email: %s", email)

	var user models.User
	var companyID, companyStatus sql.NullString
	var lastLogin sql.NullTime
	var hashedPassword string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.company_id, u.email, u.first_name, u.last_name, u.password_hash, u.role,
		       u.is_active, u.last_login, u.created_at, c.status
		FROM users u
		LEFT JOIN companies c ON c.id = u.company_id
		WHERE u.email = $1`, email).Scan(&user.ID, &companyID, &user.Email, &user.FirstName, &user.LastName,
		&hashedPassword, &user.Role, &user.IsActive, &lastLogin, &user.CreatedAt, &companyStatus)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[AUTH] User not found for email: %s", email)
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	user.CompanyID = companyID.String

	if !user.IsActive || !verifyPassword(password, hashedPassword, s.argon) {
		log.Printf("[AUTH] Invalid credentials for user: %s", user.ID)
		return nil, errInvalidCredentials
	}

	if user.Role != models.RoleSuperAdmin {
		if !companyID.Valid {
			return nil, fmt.Errorf("%w: user %s has no company", models.ErrUnauthorized, user.ID)
		}
		if models.CompanyStatus(companyStatus.String) != models.CompanyActive {
			log.Printf("[AUTH] Login refused for user %s: company %s is %s", user.ID, user.CompanyID, companyStatus.String)
			return nil, fmt.Errorf("%w: company %s is %s", models.ErrNoValidSubscription, user.CompanyID, companyStatus.String)
		}
	}

	if user.Role == models.RoleAgent {
		if user.Branches, err = s.agentBranches(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, now, user.ID); err != nil {
		log.Printf("[AUTH] Failed to record last login for %s: %v", user.ID, err)
	}
	user.LastLogin = &now

	token, claims, err := IssueToken(s.jwt, scope.Identity{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		Branches:  user.Branches,
	}, now)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		return nil, err
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

func (s *AuthService) agentBranches(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ab.branch_id
		FROM agent_branches ab
		JOIN branches b ON b.id = ab.branch_id
		WHERE ab.agent_id = $1 AND ab.is_active AND b.is_active
		ORDER BY ab.branch_id`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		branches = append(branches, id)
	}
	return branches, rows.Err()
}

// Logout revokes a single session token.
func (s *AuthService) Logout(ctx context.Context, tokenID string) error {
	if s.tokens == nil {
		return nil
	}
	if err := s.tokens.Blacklist(ctx, tokenID); err != nil {
		log.Printf("[AUTH] Failed to blacklist token: %v", err)
		return err
	}
	return nil
}
