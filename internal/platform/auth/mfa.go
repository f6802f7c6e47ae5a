package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/telemetry"
)

var (
	ErrFactorNotFound = errors.New("mfa factor not found")
	ErrInvalidCode    = errors.New("invalid verification code")
)

// Factor statuses.
const (
	FactorUnverified = "unverified"
	FactorVerified   = "verified"
)

// totpPeriod and totpSkew accept the current 30 second window and one on
// either side.
const (
	totpPeriod = 30
	totpSkew   = 1
)

// Factor is an enrolled TOTP authenticator.
type Factor struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	FriendlyName string     `json:"friendly_name,omitempty"`
	Secret       string     `json:"-"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

// FactorStore persists TOTP factors.
type FactorStore interface {
	Create(ctx context.Context, f *Factor) error
	Get(ctx context.Context, userID string, id uuid.UUID) (*Factor, error)
	ListByUser(ctx context.Context, userID string) ([]*Factor, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// Enrollment is returned once, when a factor is created; the secret is never
// readable again afterwards.
type Enrollment struct {
	FactorID uuid.UUID `json:"factor_id"`
	Secret   string    `json:"secret"`
	URI      string    `json:"uri"`
}

type MFAService struct {
	store  FactorStore
	issuer string
	now    func() time.Time
}

func NewMFAService(store FactorStore, issuer string) *MFAService {
	return &MFAService{store: store, issuer: issuer, now: time.Now}
}

// Enroll creates an unverified TOTP factor for userID.
func (s *MFAService) Enroll(ctx context.Context, userID, account, friendlyName string) (*Enrollment, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if account == "" {
		account = userID
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	f := &Factor{
		ID:           uuid.New(),
		UserID:       userID,
		FriendlyName: friendlyName,
		Secret:       key.Secret(),
		Status:       FactorUnverified,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("store factor: %w", err)
	}
	return &Enrollment{FactorID: f.ID, Secret: f.Secret, URI: key.URL()}, nil
}

// Verify checks code against the factor and marks an unverified factor as
// verified on success.
func (s *MFAService) Verify(ctx context.Context, userID string, factorID uuid.UUID, code string) (*Factor, error) {
	f, err := s.store.Get(ctx, userID, factorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ok, err := totp.ValidateCustom(code, f.Secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return nil, ErrInvalidCode
	}
	if f.Status != FactorVerified {
		at := now.UTC()
		if err := s.store.MarkVerified(ctx, f.ID, at); err != nil {
			return nil, fmt.Errorf("mark factor verified: %w", err)
		}
		f.Status = FactorVerified
		f.VerifiedAt = &at
	}
	return f, nil
}

func (s *MFAService) Unenroll(ctx context.Context, userID string, factorID uuid.UUID) error {
	return s.store.Delete(ctx, userID, factorID)
}

func (s *MFAService) ListFactors(ctx context.Context, userID string) ([]*Factor, error) {
	return s.store.ListByUser(ctx, userID)
}

// RequireAAL2 rejects callers whose session was not stepped up with a second
// factor.
func RequireAAL2() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AALFromContext(c.Request().Context()) != AAL2 {
				return echo.NewHTTPError(http.StatusForbidden, "multi-factor authentication required")
			}
			return next(c)
		}
	}
}

// InMemoryFactorStore is a FactorStore for tests and development.
type InMemoryFactorStore struct {
	mu      sync.RWMutex
	factors map[uuid.UUID]*Factor
}

func NewInMemoryFactorStore() *InMemoryFactorStore {
	return &InMemoryFactorStore{factors: make(map[uuid.UUID]*Factor)}
}

func (s *InMemoryFactorStore) Create(_ context.Context, f *Factor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.factors[f.ID] = &cp
	return nil
}

func (s *InMemoryFactorStore) Get(_ context.Context, userID string, id uuid.UUID) (*Factor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.factors[id]
	if !ok || f.UserID != userID {
		return nil, ErrFactorNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *InMemoryFactorStore) ListByUser(_ context.Context, userID string) ([]*Factor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Factor{}
	for _, f := range s.factors {
		if f.UserID == userID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryFactorStore) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.factors[id]
	if !ok {
		return ErrFactorNotFound
	}
	f.Status = FactorVerified
	f.VerifiedAt = &at
	return nil
}

func (s *InMemoryFactorStore) Delete(_ context.Context, userID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.factors[id]
	if !ok || f.UserID != userID {
		return ErrFactorNotFound
	}
	delete(s.factors, id)
	return nil
}

// -- HTTP --

type EnrollRequest struct {
	FriendlyName string `json:"friendly_name" validate:"max=64"`
}

type VerifyRequest struct {
	FactorID string `json:"factor_id" validate:"required,uuid"`
	Code     string `json:"code" validate:"required,otp"`
}

type MFAHandler struct {
	svc     *MFAService
	metrics *telemetry.Collector
}

func NewMFAHandler(svc *MFAService, metrics *telemetry.Collector) *MFAHandler {
	return &MFAHandler{svc: svc, metrics: metrics}
}

// RegisterRoutes mounts the MFA endpoints on api, which must already be
// authenticated.
func (h *MFAHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/mfa")
	g.POST("/enroll", h.Enroll)
	g.POST("/verify", h.Verify)
	g.GET("/factors", h.ListFactors)
	g.DELETE("/factors/:id", h.Unenroll)
}

func (h *MFAHandler) Enroll(c echo.Context) error {
	var req EnrollRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	enr, err := h.svc.Enroll(ctx, UserIDFromContext(ctx), UserNameFromContext(ctx), req.FriendlyName)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("mfa enroll failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not enroll factor")
	}
	return c.JSON(http.StatusCreated, enr)
}

func (h *MFAHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	f, err := h.svc.Verify(ctx, UserIDFromContext(ctx), uuid.MustParse(req.FactorID), req.Code)
	h.metrics.ObserveMFA(err == nil)
	switch {
	case errors.Is(err, ErrFactorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidCode):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Msg("mfa verify failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not verify factor")
	}
	return c.JSON(http.StatusOK, f)
}

func (h *MFAHandler) ListFactors(c echo.Context) error {
	ctx := c.Request().Context()
	factors, err := h.svc.ListFactors(ctx, UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, factors)
}

func (h *MFAHandler) Unenroll(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Unenroll(ctx, UserIDFromContext(ctx), id); err != nil {
		if errors.Is(err, ErrFactorNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
