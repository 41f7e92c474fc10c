package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify-api/internal/models"
	appErrors "github.com/attendify/attendify-api/pkg/errors"
)

type mockSessionRepo struct {
	created        *models.Session
	createErr      error
	active         *models.Session
	activeErr      error
	ended          *models.Session
	endErr         error
	deactivatedIDs []string
	deactivateErr  error
}

func (m *mockSessionRepo) CreateActive(ctx context.Context, session *models.Session) (*models.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := *session
	stored.ID = "sess-1"
	stored.Active = true
	m.created = &stored
	return &stored, nil
}

func (m *mockSessionRepo) FindActiveByClass(ctx context.Context, classID string) (*models.Session, error) {
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	return m.active, nil
}

func (m *mockSessionRepo) EndByToken(ctx context.Context, token string) (*models.Session, error) {
	if m.endErr != nil {
		return nil, m.endErr
	}
	if m.ended == nil || m.ended.Token != token {
		return nil, sql.ErrNoRows
	}
	m.ended.Active = false
	return m.ended, nil
}

func (m *mockSessionRepo) Deactivate(ctx context.Context, id string) error {
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	m.deactivatedIDs = append(m.deactivatedIDs, id)
	return nil
}

type mockClassReader struct {
	class *models.Class
	err   error
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.class, nil
}

type stubEncoder struct {
	payload []byte
	err     error
}

func (e *stubEncoder) Encode(payload []byte) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.payload = payload
	return "data:image/png;base64,stub", nil
}

func teacherClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleTeacher}
}

func newTestSessionService(repo *mockSessionRepo, classes *mockClassReader, encoder *stubEncoder, at time.Time) *SessionService {
	svc := NewSessionService(repo, classes, nil, encoder, nil, nil, nil, SessionConfig{})
	svc.now = func() time.Time { return at }
	return svc
}

func TestSessionServiceCreate(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{}
	classes := &mockClassReader{class: &models.Class{ID: "class-1", Name: "Algorithms", TeacherID: "teacher-1"}}
	encoder := &stubEncoder{}
	svc := newTestSessionService(repo, classes, encoder, now)

	view, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:       "class-1",
		LectureTiming: "Mon 9:00",
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(view.Token, "SESSION-class-1-"))
	assert.Equal(t, "data:image/png;base64,stub", view.QRCode)
	assert.Equal(t, now.Add(60*time.Minute), view.ExpiresAt)
	assert.True(t, view.Active)
	assert.Contains(t, string(encoder.payload), view.Token)
	assert.Contains(t, string(encoder.payload), "class-1")
}

func TestSessionServiceCreateTokensUnique(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	first, err := newSessionToken("class-1", now)
	require.NoError(t, err)
	second, err := newSessionToken("class-1", now)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSessionServiceCreateCustomDuration(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{}
	classes := &mockClassReader{class: &models.Class{ID: "class-1", TeacherID: "teacher-1"}}
	svc := newTestSessionService(repo, classes, &stubEncoder{}, now)

	view, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID:         "class-1",
		LectureTiming:   "Mon 9:00",
		DurationMinutes: 15,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), view.ExpiresAt)
}

func TestSessionServiceCreateClassNotFound(t *testing.T) {
	repo := &mockSessionRepo{}
	classes := &mockClassReader{err: sql.ErrNoRows}
	svc := newTestSessionService(repo, classes, &stubEncoder{}, time.Now())

	_, err := svc.Create(context.Background(), CreateSessionRequest{ClassID: "missing", LectureTiming: "Mon 9:00"}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreateForbidden(t *testing.T) {
	repo := &mockSessionRepo{}
	classes := &mockClassReader{class: &models.Class{ID: "class-1", TeacherID: "other-teacher"}}
	svc := newTestSessionService(repo, classes, &stubEncoder{}, time.Now())

	_, err := svc.Create(context.Background(), CreateSessionRequest{ClassID: "class-1", LectureTiming: "Mon 9:00"}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestSessionServiceCreateEncoderFailure(t *testing.T) {
	repo := &mockSessionRepo{}
	classes := &mockClassReader{class: &models.Class{ID: "class-1", TeacherID: "teacher-1"}}
	svc := newTestSessionService(repo, classes, &stubEncoder{err: errors.New("png boom")}, time.Now())

	_, err := svc.Create(context.Background(), CreateSessionRequest{ClassID: "class-1", LectureTiming: "Mon 9:00"}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestSessionServiceActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{active: &models.Session{
		ID:        "sess-1",
		Token:     "SESSION-class-1-1-abc123",
		ClassID:   "class-1",
		Active:    true,
		ExpiresAt: now.Add(time.Minute),
	}}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, now)

	session, err := svc.Active(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Empty(t, repo.deactivatedIDs)
}

func TestSessionServiceActiveExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{active: &models.Session{
		ID:        "sess-1",
		ClassID:   "class-1",
		Active:    true,
		ExpiresAt: now.Add(-time.Millisecond),
	}}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, now)

	_, err := svc.Active(context.Background(), "class-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"sess-1"}, repo.deactivatedIDs)
}

func TestSessionServiceActiveExpiryBoundary(t *testing.T) {
	expiresAt := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// One instant before the boundary the session is still live.
	repo := &mockSessionRepo{active: &models.Session{ID: "sess-1", ClassID: "class-1", Active: true, ExpiresAt: expiresAt}}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, expiresAt.Add(-time.Millisecond))
	_, err := svc.Active(context.Background(), "class-1")
	require.NoError(t, err)

	// At the boundary it is expired.
	repo = &mockSessionRepo{active: &models.Session{ID: "sess-1", ClassID: "class-1", Active: true, ExpiresAt: expiresAt}}
	svc = newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, expiresAt)
	_, err = svc.Active(context.Background(), "class-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceActiveNone(t *testing.T) {
	repo := &mockSessionRepo{activeErr: sql.ErrNoRows}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, time.Now())

	_, err := svc.Active(context.Background(), "class-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceEndIdempotent(t *testing.T) {
	repo := &mockSessionRepo{ended: &models.Session{Token: "SESSION-class-1-1-abc123", ClassID: "class-1", Active: false}}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, time.Now())

	view, err := svc.End(context.Background(), "SESSION-class-1-1-abc123")
	require.NoError(t, err)
	assert.False(t, view.Active)

	// Ending again succeeds with the same inactive state.
	view, err = svc.End(context.Background(), "SESSION-class-1-1-abc123")
	require.NoError(t, err)
	assert.False(t, view.Active)
}

func TestSessionServiceEndUnknownToken(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, time.Now())

	_, err := svc.End(context.Background(), "SESSION-unknown")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceQRView(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{active: &models.Session{
		ID:            "sess-1",
		Token:         "SESSION-class-1-1-abc123",
		ClassID:       "class-1",
		LectureTiming: "Mon 9:00",
		QRCode:        "data:image/png;base64,stub",
		Active:        true,
		ExpiresAt:     now.Add(90 * time.Second),
	}}
	classes := &mockClassReader{class: &models.Class{ID: "class-1", Name: "Algorithms"}}
	svc := newTestSessionService(repo, classes, &stubEncoder{}, now)

	view, err := svc.QRView(context.Background(), "class-1")
	require.NoError(t, err)
	require.NotNil(t, view.QRImage)
	assert.Equal(t, "data:image/png;base64,stub", *view.QRImage)
	assert.Equal(t, int64(90), view.ExpiresIn)
	assert.Equal(t, "Algorithms", view.ClassName)
	assert.Empty(t, view.Message)
}

func TestSessionServiceQRViewExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{active: &models.Session{
		ID:        "sess-1",
		ClassID:   "class-1",
		Active:    true,
		ExpiresAt: now,
	}}
	svc := newTestSessionService(repo, &mockClassReader{class: &models.Class{ID: "class-1"}}, &stubEncoder{}, now)

	view, err := svc.QRView(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Nil(t, view.QRImage)
	assert.Equal(t, int64(0), view.ExpiresIn)
	assert.Equal(t, "Session expired", view.Message)
	assert.Equal(t, []string{"sess-1"}, repo.deactivatedIDs)
}

func TestSessionServiceQRViewNoSession(t *testing.T) {
	repo := &mockSessionRepo{activeErr: sql.ErrNoRows}
	svc := newTestSessionService(repo, &mockClassReader{}, &stubEncoder{}, time.Now())

	_, err := svc.QRView(context.Background(), "class-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
