// Package auth issues and verifies the RS512-signed session tokens that carry
// a user's name and privilege level between requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
)

// ErrNoToken is returned by Verify for an empty token. It means "no identity"
// rather than a failed check.
var ErrNoToken = errors.New("no session token")

// Claims are the session claims. AuthTime is the original login time and is
// carried unchanged through renewals.
type Claims struct {
	jwt.RegisteredClaims
	Username       string           `json:"username"`
	PrivilegeLevel models.Level     `json:"privilege_level"`
	AuthTime       *jwt.NumericDate `json:"auth_time,omitempty"`
}

// Denylist records token ids revoked before they expire.
type Denylist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Options struct {
	Issuer   string
	Audience string
	Lifetime time.Duration
	// MaxSessionAge bounds how long renewals may extend a login. Zero means
	// no bound.
	MaxSessionAge time.Duration
	// Denylist enables logout and single-use renewal. Nil keeps tokens
	// purely stateless.
	Denylist Denylist
	Now      func() time.Time
	Logger   logging.Logger
}

type Service struct {
	keys   KeyPair
	opts   Options
	parser *jwt.Parser
	logger logging.Logger
}

func NewService(keys KeyPair, opts Options) (*Service, error) {
	if keys.Private == nil || keys.Public == nil {
		return nil, errors.New("token service needs a key pair")
	}
	if opts.Issuer == "" || opts.Audience == "" {
		return nil, errors.New("token issuer and audience must be set")
	}
	if opts.Lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %s", opts.Lifetime)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS512.Alg()}),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(opts.Now),
	)
	return &Service{keys: keys, opts: opts, parser: parser, logger: opts.Logger.With("module", "auth")}, nil
}

// Lifetime is the validity window of freshly issued tokens.
func (s *Service) Lifetime() time.Duration { return s.opts.Lifetime }

// Issue signs a new token for a login.
func (s *Service) Issue(username string, level models.Level) (string, Claims, error) {
	return s.issue(username, level, s.opts.Now())
}

func (s *Service) issue(username string, level models.Level, authTime time.Time) (string, Claims, error) {
	now := s.opts.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Issuer,
			Audience:  jwt.ClaimStrings{s.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.Lifetime)),
			ID:        uuid.NewString(),
		},
		Username:       username,
		PrivilegeLevel: level,
		AuthTime:       jwt.NewNumericDate(authTime),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS512, claims).SignedString(s.keys.Private)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return token, claims, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry. Every
// failure is reported as common.ErrorUnauthorized and the reason is logged.
func (s *Service) Verify(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrNoToken
	}

	claims := &Claims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.keys.Public, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, s.reject(ctx, "invalid token", err)
	}
	if models.ValidateUsername(claims.Username) != nil || !claims.PrivilegeLevel.Valid() || claims.ID == "" {
		return Claims{}, s.reject(ctx, "malformed claims", nil)
	}

	if s.opts.Denylist != nil {
		revoked, err := s.opts.Denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Claims{}, err
		}
		if revoked {
			return Claims{}, s.reject(ctx, "revoked token", nil, "username", claims.Username)
		}
	}
	return *claims, nil
}

func (s *Service) reject(ctx context.Context, reason string, err error, args ...any) error {
	args = append(args, "reason", reason)
	if err != nil {
		args = append(args, "error", err)
	}
	s.logger.Warn(ctx, "session token rejected", args...)
	return common.ErrorUnauthorized
}

// Renew verifies token and issues a replacement for the same user and level.
// With a denylist the old token stops working.
func (s *Service) Renew(ctx context.Context, token string) (string, Claims, error) {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return "", Claims{}, err
	}

	authTime := claims.IssuedAt.Time
	if claims.AuthTime != nil {
		authTime = claims.AuthTime.Time
	}
	if s.opts.MaxSessionAge > 0 && s.opts.Now().Sub(authTime) > s.opts.MaxSessionAge {
		return "", Claims{}, s.reject(ctx, "session too old to renew", nil, "username", claims.Username)
	}

	if err := s.revoke(ctx, claims); err != nil {
		return "", Claims{}, err
	}
	return s.issue(claims.Username, claims.PrivilegeLevel, authTime)
}

// Revoke ends the session carried by token. Without a denylist it only
// verifies the token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

func (s *Service) revoke(ctx context.Context, claims Claims) error {
	if s.opts.Denylist == nil {
		return nil
	}
	return s.opts.Denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
