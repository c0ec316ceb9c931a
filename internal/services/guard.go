package services

import (
	"context"
	"time"

	"tasktree/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	Subject string `json:"subject"`
}

type identityKey struct{}
type requestIDKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok && identity.Subject != ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AuditRecorder receives every denied access decision. Implementations must
// not block on the database or the network, because Authorize runs inside a
// transaction.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog) error
}

// AccessRequest describes one ownership check. OwnerID is empty when the
// target does not exist.
type AccessRequest struct {
	Action     string
	Resource   string
	ResourceID uuid.UUID
	OwnerID    string
}

type AccessGuard struct {
	logger   zerolog.Logger
	recorder AuditRecorder
	now      func() time.Time
}

// NewAccessGuard accepts a nil recorder; denials are then only logged.
func NewAccessGuard(logger zerolog.Logger, recorder AuditRecorder) *AccessGuard {
	return &AccessGuard{
		logger:   logger.With().Str("component", "access_guard").Logger(),
		recorder: recorder,
		now:      time.Now,
	}
}

func (g *AccessGuard) Caller(ctx context.Context) (Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}

// Authorize passes only when the target exists and belongs to the caller.
func (g *AccessGuard) Authorize(ctx context.Context, caller Identity, req AccessRequest) error {
	if req.OwnerID != "" && req.OwnerID == caller.Subject {
		return nil
	}

	reason := "not owner"
	if req.OwnerID == "" {
		reason = "not found"
	}
	g.deny(ctx, caller, req, reason)
	return ErrUnauthorized
}

func (g *AccessGuard) deny(ctx context.Context, caller Identity, req AccessRequest, reason string) {
	requestID := RequestIDFromContext(ctx)

	g.logger.Warn().
		Str("subject", caller.Subject).
		Str("action", req.Action).
		Str("resource", req.Resource).
		Str("resource_id", req.ResourceID.String()).
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("access denied")

	if g.recorder == nil {
		return
	}
	entry := models.AuditLog{
		UserID:     caller.Subject,
		Action:     req.Action,
		Resource:   req.Resource,
		ResourceID: req.ResourceID.String(),
		Decision:   models.DecisionDenied,
		Reason:     reason,
		RequestID:  requestID,
		Timestamp:  g.now(),
	}
	if err := g.recorder.Record(ctx, entry); err != nil {
		g.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to record audit entry")
	}
}
