package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/attendify/attendify-api/internal/models"
	appErrors "github.com/attendify/attendify-api/pkg/errors"
	"github.com/attendify/attendify-api/pkg/qr"
)

type sessionRepository interface {
	CreateActive(ctx context.Context, session *models.Session) (*models.Session, error)
	FindActiveByClass(ctx context.Context, classID string) (*models.Session, error)
	EndByToken(ctx context.Context, token string) (*models.Session, error)
	Deactivate(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type qrViewCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SessionConfig tunes session issuance.
type SessionConfig struct {
	DefaultDuration time.Duration
	QRViewCacheTTL  time.Duration
}

// SessionService is the session lifecycle manager. It owns creation,
// manual ending and the lazy expiry performed on reads; no background
// job ever touches sessions.
type SessionService struct {
	repo      sessionRepository
	classes   classReader
	cache     qrViewCache
	encoder   qr.Encoder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionConfig
	now       func() time.Time
}

// NewSessionService constructs the session lifecycle manager.
func NewSessionService(repo sessionRepository, classes classReader, cache qrViewCache, encoder qr.Encoder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultDuration <= 0 {
		config.DefaultDuration = 60 * time.Minute
	}
	if config.QRViewCacheTTL <= 0 {
		config.QRViewCacheTTL = 2 * time.Second
	}
	return &SessionService{
		repo:      repo,
		classes:   classes,
		cache:     cache,
		encoder:   encoder,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// CreateSessionRequest describes the payload for issuing a QR session.
type CreateSessionRequest struct {
	ClassID         string `json:"classId" validate:"required"`
	LectureTiming   string `json:"lectureTiming" validate:"required"`
	DurationMinutes int    `json:"durationMinutes"`
}

// newSessionToken builds a unique readable token from the class, a
// millisecond timestamp and a random nonce.
func newSessionToken(classID string, now time.Time) (string, error) {
	nonce := make([]byte, 3)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session nonce: %w", err)
	}
	return fmt.Sprintf("SESSION-%s-%d-%s", classID, now.UnixMilli(), hex.EncodeToString(nonce)), nil
}

// Create issues a new active session for a class owned by the caller.
// Any previously active session for the class is deactivated within
// the same transaction as the insert.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest, claims *models.JWTClaims) (*models.SessionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is owned by another teacher")
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = s.config.DefaultDuration
	}

	now := s.now().UTC()
	token, err := newSessionToken(req.ClassID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate session token")
	}

	payload, err := qr.Payload{
		SessionID:     token,
		ClassID:       req.ClassID,
		LectureTiming: req.LectureTiming,
		Timestamp:     now,
	}.Marshal()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build qr payload")
	}

	// Encoder failures are transient: the caller retries the whole
	// operation and a fresh token is generated, never a stale one.
	qrCode, err := s.encoder.Encode(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to encode qr image")
	}

	session := &models.Session{
		Token:         token,
		ClassID:       req.ClassID,
		TeacherID:     claims.UserID,
		LectureTiming: req.LectureTiming,
		QRCode:        qrCode,
		CreatedAt:     now,
		ExpiresAt:     now.Add(duration),
	}
	stored, err := s.repo.CreateActive(ctx, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.invalidateQRView(ctx, req.ClassID)
	s.metrics.IncSessionsCreated()
	s.logger.Info("session created",
		zap.String("token", stored.Token),
		zap.String("class_id", stored.ClassID),
		zap.Time("expires_at", stored.ExpiresAt))

	return &models.SessionView{
		Token:         stored.Token,
		QRCode:        stored.QRCode,
		LectureTiming: stored.LectureTiming,
		ExpiresAt:     stored.ExpiresAt,
		Active:        stored.Active,
	}, nil
}

// Active returns the newest active session for a class. A session
// whose window has passed is deactivated on the spot and reported as
// expired, so reads enforce expiry instead of displaying stale state.
func (s *SessionService) Active(ctx context.Context, classID string) (*models.Session, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id required")
	}
	session, err := s.repo.FindActiveByClass(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active session found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	if session.Expired(s.now()) {
		if err := s.repo.Deactivate(ctx, session.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire session")
		}
		s.invalidateQRView(ctx, classID)
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "session expired")
	}
	return session, nil
}

// End clears the active flag for a session. Ending an already inactive
// session succeeds and returns its current state.
func (s *SessionService) End(ctx context.Context, token string) (*models.SessionView, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session token required")
	}
	session, err := s.repo.EndByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	s.invalidateQRView(ctx, session.ClassID)
	return &models.SessionView{
		Token:         session.Token,
		QRCode:        session.QRCode,
		LectureTiming: session.LectureTiming,
		ExpiresAt:     session.ExpiresAt,
		Active:        session.Active,
	}, nil
}

// cachedQRSession is the Redis projection backing the polled QR view.
type cachedQRSession struct {
	Token         string    `json:"token"`
	QRCode        string    `json:"qr_code"`
	LectureTiming string    `json:"lecture_timing"`
	ClassName     string    `json:"class_name"`
	ExpiresAt     time.Time `json:"expires_at"`
	SessionID     string    `json:"session_id"`
}

// QRView returns the display state the UI polls: the QR image plus the
// remaining seconds. Expiry here is a normal terminal display state,
// not an error; the stored active flag is still cleared when crossed.
func (s *SessionService) QRView(ctx context.Context, classID string) (*models.QRView, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id required")
	}

	cached, err := s.loadQRSession(ctx, classID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !now.Before(cached.ExpiresAt) {
		if err := s.repo.Deactivate(ctx, cached.SessionID); err != nil {
			s.logger.Warn("failed to deactivate expired session", zap.Error(err), zap.String("session_id", cached.SessionID))
		}
		s.invalidateQRView(ctx, classID)
		return &models.QRView{QRImage: nil, ExpiresIn: 0, Message: "Session expired"}, nil
	}
	expiresIn := int64(cached.ExpiresAt.Sub(now) / time.Second)

	image := cached.QRCode
	return &models.QRView{
		QRImage:       &image,
		ExpiresIn:     expiresIn,
		Token:         cached.Token,
		LectureTiming: cached.LectureTiming,
		ClassName:     cached.ClassName,
	}, nil
}

func (s *SessionService) loadQRSession(ctx context.Context, classID string) (*cachedQRSession, error) {
	key := qrViewKey(classID)

	var cached cachedQRSession
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("qr view cache read failed", zap.Error(err))
		}
	}

	session, err := s.repo.FindActiveByClass(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active session found for this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}

	className := ""
	if class, err := s.classes.FindByID(ctx, session.ClassID); err == nil {
		className = class.Name
	}

	cached = cachedQRSession{
		Token:         session.Token,
		QRCode:        session.QRCode,
		LectureTiming: session.LectureTiming,
		ClassName:     className,
		ExpiresAt:     session.ExpiresAt,
		SessionID:     session.ID,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cached, s.config.QRViewCacheTTL); err != nil {
			s.logger.Warn("qr view cache write failed", zap.Error(err))
		}
	}
	return &cached, nil
}

func (s *SessionService) invalidateQRView(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, qrViewKey(classID)); err != nil {
		s.logger.Warn("qr view cache invalidation failed", zap.Error(err), zap.String("class_id", classID))
	}
}

func qrViewKey(classID string) string {
	return "attendify:qrview:" + classID
}
