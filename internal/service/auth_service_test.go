package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/attendify/attendify-api/internal/models"
	appErrors "github.com/attendify/attendify-api/pkg/errors"
)

type mockUserRepo struct {
	byEmail map[string]*models.User
	created *models.User
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-1"
	m.created = user
	return nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func testAuthConfig() AuthConfig {
	return AuthConfig{Secret: "secret", Expiration: time.Hour, Issuer: "attendify-test"}
}

func TestAuthServiceRegister(t *testing.T) {
	repo := &mockUserRepo{byEmail: map[string]*models.User{}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "Grace@Example.com",
		Password: "hunter22",
		Role:     "teacher",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.RoleTeacher, res.User.Role)
	require.NotNil(t, repo.created)
	assert.Equal(t, "grace@example.com", repo.created.Email)
	assert.NotEqual(t, "hunter22", repo.created.PasswordHash)
}

func TestAuthServiceRegisterInvalidRole(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{byEmail: map[string]*models.User{}}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "hunter22",
		Role:     "admin",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{byEmail: map[string]*models.User{
		"grace@example.com": {ID: "user-1", Email: "grace@example.com"},
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "hunter22",
		Role:     "STUDENT",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogin(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.DefaultCost)
	repo := &mockUserRepo{byEmail: map[string]*models.User{
		"grace@example.com": {ID: "user-1", Email: "grace@example.com", PasswordHash: string(hash), Role: models.RoleTeacher},
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "grace@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, int64(3600), res.ExpiresIn)

	claims, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.DefaultCost)
	repo := &mockUserRepo{byEmail: map[string]*models.User{
		"grace@example.com": {ID: "user-1", Email: "grace@example.com", PasswordHash: string(hash)},
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "grace@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{byEmail: map[string]*models.User{}}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{byEmail: map[string]*models.User{}}, nil, nil, testAuthConfig())
	other := NewAuthService(&mockUserRepo{byEmail: map[string]*models.User{}}, nil, nil, AuthConfig{Secret: "different", Expiration: time.Hour})

	res, err := other.issue(&models.User{ID: "user-1", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
