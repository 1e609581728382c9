package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/internal/repository/memory"
	"github.com/jwalitptl/triage-api/internal/service/audit"
	"github.com/jwalitptl/triage-api/pkg/auth"
	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/security"
)

type fixture struct {
	svc    *Service
	jwt    *auth.JWTManager
	audits repository.AuditRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("s3cure-pass")
	require.NoError(t, err)

	staff := memory.NewStaffRepository(
		model.Staff{ID: "doc-1", Name: "Dr. Lima", Role: model.StaffRoleDoctor, Email: "lima@hospital.local", PasswordHash: hash},
		model.Staff{ID: "nurse-1", Name: "Bea", Role: model.StaffRoleNurse, Email: "bea@hospital.local"},
	)
	audits := memory.NewAuditRepository()
	jwt := auth.NewJWTManager(config.JWTConfig{Secret: "test", Issuer: "triage"})
	return fixture{
		svc:    NewService(staff, hasher, jwt, audit.NewService(audits), logger.Nop()),
		jwt:    jwt,
		audits: audits,
	}
}

func TestLogin_IssuesTokenAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, " LIMA@hospital.local", "s3cure-pass")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, "doc-1", res.Staff.ID)

	claims, err := f.jwt.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", claims.StaffID)
	assert.Equal(t, model.StaffRoleDoctor, claims.Role)

	logs, err := f.audits.ListByAction(ctx, ActionLogin)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "doc-1", logs[0].ActorID)
}

func TestLogin_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name, email, password string
	}{
		{"unknown email", "ghost@hospital.local", "s3cure-pass"},
		{"wrong password", "lima@hospital.local", "nope"},
		{"no password set", "bea@hospital.local", "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
		})
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := f.svc.Login(ctx, "lima@hospital.local", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.svc.Login(ctx, "lima@hospital.local", "s3cure-pass")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	member, err := f.svc.Me(context.Background(), "nurse-1")
	require.NoError(t, err)
	assert.Equal(t, model.StaffRoleNurse, member.Role)

	_, err = f.svc.Me(context.Background(), "ghost")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}
