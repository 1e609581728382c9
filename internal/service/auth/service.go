package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/internal/service/audit"
	"github.com/jwalitptl/triage-api/pkg/auth"
	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked, please try again later")
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute

	ActionLogin = "STAFF_LOGIN"
)

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	Staff       *model.Staff `json:"staff"`
}

type Service struct {
	staff    repository.StaffRepository
	hasher   security.PasswordHasher
	jwtSvc   auth.JWTService
	auditor  *audit.Service
	attempts *cache.Cache
	logger   *logger.Logger
}

func NewService(staff repository.StaffRepository, hasher security.PasswordHasher, jwtSvc auth.JWTService, auditor *audit.Service, log *logger.Logger) *Service {
	return &Service{
		staff:    staff,
		hasher:   hasher,
		jwtSvc:   jwtSvc,
		auditor:  auditor,
		attempts: cache.New(lockoutDuration, 2*lockoutDuration),
		logger:   log.With("component", "auth_service"),
	}
}

// Login exchanges an e-mail and password for an access token. Failed
// attempts are counted per e-mail; the fifth locks the account for
// lockoutDuration.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if n, ok := s.attempts.Get(key); ok && n.(int) >= maxLoginAttempts {
		return nil, apperrors.Unauthorized(ErrAccountLocked)
	}

	member, err := s.staff.GetByEmail(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		s.failed(key)
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("look up staff: %w", err))
	}

	if member.PasswordHash == "" {
		s.failed(key)
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	if err := s.hasher.Compare(member.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.logger.Error(err, "Stored password hash is unusable", "staff_id", member.ID)
		}
		s.failed(key)
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	s.attempts.Delete(key)

	token, err := s.jwtSvc.GenerateAccessToken(member)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if err := s.auditor.Log(ctx, member.ID, ActionLogin, &audit.LogOptions{
		Details: map[string]interface{}{"role": member.Role},
	}); err != nil {
		s.logger.Error(err, "Failed to audit login", "staff_id", member.ID)
	}

	return &TokenResponse{AccessToken: token, TokenType: "Bearer", Staff: member}, nil
}

// Me returns the staff member behind an authenticated request.
func (s *Service) Me(ctx context.Context, staffID string) (*model.Staff, error) {
	member, err := s.staff.GetByID(ctx, staffID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("staff", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return member, nil
}

func (s *Service) failed(key string) {
	if _, err := s.attempts.IncrementInt(key, 1); err != nil {
		s.attempts.SetDefault(key, 1)
	}
}
