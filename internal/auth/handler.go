package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"

	"clienttabs/internal/apperr"
	"clienttabs/internal/store"
)

// AuthHandler handles operator login and token rotation.
type AuthHandler struct {
	store     *store.Store
	jwtSecret string
}

func NewAuthHandler(s *store.Store, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret}
}

type user struct {
	ID           string
	PasswordHash string
	Roles        pq.StringArray
	Active       bool
}

type tokenBody struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return apperr.Unauthorized("Email and password are required")
	}

	var pair *TokenPair
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		u, err := findUserByEmail(c.UserContext(), tx, body.Email)
		if err != nil {
			return err
		}
		if u == nil || !CheckPassword(body.Password, u.PasswordHash) {
			return apperr.Unauthorized("Invalid email or password")
		}
		if !u.Active {
			return apperr.Unauthorized("Account is disabled")
		}
		pair, err = h.issue(c.UserContext(), tx, u.ID, u.Roles)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. The presented token is consumed.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body tokenBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid request body")
	}
	if body.RefreshToken == "" {
		return apperr.Unauthorized("Refresh token is required")
	}

	ctx := c.UserContext()
	var pair *TokenPair
	err := h.store.InTx(ctx, func(tx store.Querier) error {
		var (
			userID    string
			expiresAt time.Time
			roles     pq.StringArray
			active    bool
		)
		err := tx.QueryRowContext(ctx,
			`DELETE FROM _refresh_tokens rt USING _users u
			 WHERE u.id = rt.user_id AND rt.token::text = $1
			 RETURNING rt.user_id, rt.expires_at, u.roles, u.active`, body.RefreshToken).
			Scan(&userID, &expiresAt, &roles, &active)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Unauthorized("Invalid refresh token")
		}
		if err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}

		if time.Now().After(expiresAt) {
			return apperr.Unauthorized("Refresh token expired")
		}
		if !active {
			return apperr.Unauthorized("Account is disabled")
		}
		pair, err = h.issue(ctx, tx, userID, roles)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body tokenBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid request body")
	}
	if body.RefreshToken == "" {
		return apperr.Unauthorized("Refresh token is required")
	}

	if _, err := store.Exec(c.UserContext(), h.store.DB,
		"DELETE FROM _refresh_tokens WHERE token::text = $1", body.RefreshToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
}

func findUserByEmail(ctx context.Context, q store.Querier, email string) (*user, error) {
	var u user
	err := q.QueryRowContext(ctx,
		"SELECT id, password_hash, COALESCE(roles, '{}'), COALESCE(active, false) FROM _users WHERE email = $1", email).
		Scan(&u.ID, &u.PasswordHash, &u.Roles, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (h *AuthHandler) issue(ctx context.Context, q store.Querier, userID string, roles []string) (*TokenPair, error) {
	access, err := GenerateAccessToken(userID, roles, h.jwtSecret)
	if err != nil {
		return nil, err
	}

	refresh := GenerateRefreshToken()
	if _, err := store.Exec(ctx, q,
		`INSERT INTO _refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, refresh, time.Now().Add(RefreshTokenTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
