package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/auth/jwt"
	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
)

// Principal is the identity a credential resolves to.
type Principal struct {
	UserID      uuid.UUID
	DisplayName string
}

var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

// SanctionedError is returned for accounts under an active ban.
type SanctionedError struct {
	Reason string
	EndsAt time.Time
}

func (e *SanctionedError) Error() string {
	return fmt.Sprintf("auth: account sanctioned until %s", e.EndsAt.UTC().Format(time.RFC3339))
}

type sanctionStore interface {
	ActiveSanction(ctx context.Context, userID uuid.UUID, now time.Time) (repository.Sanction, error)
}

// ServiceOptions configures the auth service.
type ServiceOptions struct {
	TokenConfig jwt.TokenConfig
}

// Service resolves bearer credentials to principals.
type Service struct {
	sanctions sanctionStore
	tokenMgr  *jwt.Manager
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates an authentication service. sanctions may be nil.
func NewService(sanctions sanctionStore, opts ServiceOptions, logger zerolog.Logger) *Service {
	return &Service{
		sanctions: sanctions,
		tokenMgr:  jwt.NewManager(opts.TokenConfig),
		logger:    logger.With().Str("component", "auth").Logger(),
		now:       time.Now,
	}
}

// Tokens exposes the token manager for issuing credentials.
func (s *Service) Tokens() *jwt.Manager {
	return s.tokenMgr
}

// ResolvePrincipal validates credential and rejects sanctioned accounts.
// A failing sanction lookup is logged and does not block the user.
func (s *Service) ResolvePrincipal(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, ErrMissingCredential
	}

	claims, err := s.tokenMgr.ValidateAccessToken(credential)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	p := Principal{UserID: claims.UserID, DisplayName: claims.DisplayName}
	if p.DisplayName == "" {
		p.DisplayName = "player-" + p.UserID.String()[:8]
	}

	if s.sanctions == nil {
		return p, nil
	}
	sanction, err := s.sanctions.ActiveSanction(ctx, p.UserID, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return p, nil
	case err != nil:
		s.logger.Warn().Err(err).Str("user_id", p.UserID.String()).Msg("sanction lookup failed")
		return p, nil
	default:
		return Principal{}, &SanctionedError{Reason: sanction.Reason, EndsAt: sanction.EndsAt}
	}
}
