package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-attendance-api/internal/models"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

type mockAuthRepo struct {
	user             *models.User
	findErr          error
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthFixture(t *testing.T, active bool) (*AuthService, *mockAuthRepo) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{user: &models.User{
		ID:           "user-1",
		Email:        "teacher@example.com",
		PasswordHash: string(hash),
		FullName:     "Grace Hopper",
		Role:         models.RoleTeacher,
		Active:       active,
	}}
	svc := NewAuthService(repo, repo, nil, nil, AuthConfig{AccessTokenSecret: "test-secret", AccessTokenExpiry: time.Hour, Issuer: "test"})
	return svc, repo
}

func TestAuthServiceLoginIssuesValidToken(t *testing.T) {
	svc, repo := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@example.com", Password: "secret123", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.TokenTypeBearer, resp.TokenType)
	assert.Contains(t, resp.User.Permissions, models.PermissionRecordAbsence)
	assert.NotContains(t, resp.User.Permissions, models.PermissionManageDevices)
	require.NotNil(t, resp.User.LastLogin)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginRejectsWrongPassword(t *testing.T) {
	svc, repo := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
	assert.False(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.JSONEq(t, `{"status":"failure"}`, string(repo.auditLogs[0].NewValues))
}

func TestAuthServiceValidateTokenChecksIssuer(t *testing.T) {
	svc, _ := newAuthFixture(t, true)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@example.com", Password: "secret123"})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "test-secret", Issuer: "someone-else"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, _ := newAuthFixture(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@example.com", Password: "secret123"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	svc, repo := newAuthFixture(t, true)
	repo.findErr = sql.ErrNoRows

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginValidatesPayload(t *testing.T) {
	svc, _ := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t, true)

	_, err := svc.ValidateToken("not-a-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceMe(t *testing.T) {
	svc, repo := newAuthFixture(t, true)

	info, err := svc.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", info.FullName)

	repo.findErr = sql.ErrNoRows
	_, err = svc.Me(context.Background(), "user-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
