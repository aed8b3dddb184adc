package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/idtoken"

	"restopos-backend/internal/config"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

var ErrInvalidToken = errors.New("invalid token")

// IDTokenVerifier is the part of the Firebase auth client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// AuthService turns bearer tokens into a CurrentUser.
type AuthService struct {
	Config       config.Config
	Logger       *slog.Logger
	FirebaseAuth IDTokenVerifier
	// ValidateOIDC defaults to idtoken.Validate.
	ValidateOIDC func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
	Now          func() time.Time
}

// TokenClaims are the custom claims carried by staff and customer tokens.
type TokenClaims struct {
	Subject    string
	Email      string
	TenantID   string
	Role       domain.UserRole
	Roles      []string
	Admin      bool
	CustomerID string
}

// Authenticate verifies a Firebase ID token when Firebase is configured and an
// HS256 token otherwise.
func (s AuthService) Authenticate(ctx context.Context, raw string) (*authctx.CurrentUser, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	if s.FirebaseAuth != nil {
		tok, err := s.FirebaseAuth.VerifyIDToken(ctx, raw)
		if err == nil {
			return userFromClaims(tok.UID, tok.Claims), nil
		}
		if s.Config.JWTSecret == "" {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		s.Logger.Debug("firebase token rejected, trying local token", "err", err)
	}
	return s.parseLocal(raw)
}

func (s AuthService) parseLocal(raw string) (*authctx.CurrentUser, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.Config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	return userFromClaims(sub, claims), nil
}

// AuthenticateScheduler accepts a Google-signed OIDC token for the configured
// audience, or any admin token.
func (s AuthService) AuthenticateScheduler(ctx context.Context, raw string) (*authctx.CurrentUser, error) {
	if s.Config.SchedulerAudience != "" {
		validate := s.ValidateOIDC
		if validate == nil {
			validate = idtoken.Validate
		}
		payload, err := validate(ctx, raw, s.Config.SchedulerAudience)
		if err == nil {
			uid := payload.Subject
			email, _ := payload.Claims["email"].(string)
			if email != "" {
				uid = email
			}
			return &authctx.CurrentUser{UID: uid, Email: email, Role: domain.RoleAdmin, Admin: true}, nil
		}
		s.Logger.Debug("scheduler oidc token rejected", "err", err)
	}
	user, err := s.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// IssueToken signs an HS256 access token; used by posctl and local development.
func (s AuthService) IssueToken(c TokenClaims) (string, time.Time, error) {
	if s.Config.JWTSecret == "" {
		return "", time.Time{}, errors.New("JWT_SECRET is not set")
	}
	if c.Subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	ttl := s.Config.AccessTokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub":        c.Subject,
		"token_type": "access",
		"iat":        now.Unix(),
		"exp":        exp.Unix(),
	}
	if c.Email != "" {
		claims["email"] = c.Email
	}
	if c.TenantID != "" {
		claims["tenantId"] = c.TenantID
	}
	if c.Role != "" {
		claims["role"] = string(c.Role)
	}
	if len(c.Roles) > 0 {
		claims["roles"] = c.Roles
	}
	if c.Admin {
		claims["admin"] = true
	}
	if c.CustomerID != "" {
		claims["customerId"] = c.CustomerID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func userFromClaims(uid string, claims map[string]any) *authctx.CurrentUser {
	u := &authctx.CurrentUser{UID: uid}
	u.Email, _ = claims["email"].(string)
	u.TenantID, _ = claims["tenantId"].(string)
	u.CustomerID, _ = claims["customerId"].(string)
	u.Admin, _ = claims["admin"].(bool)
	if role, ok := claims["role"].(string); ok {
		u.Role = domain.UserRole(role)
	}
	switch roles := claims["roles"].(type) {
	case []string:
		u.Roles = roles
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				u.Roles = append(u.Roles, s)
			}
		}
	}
	return u
}
