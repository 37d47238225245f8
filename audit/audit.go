package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind classifies a security-relevant event.
type Kind string

const (
	KindCodeReplay     Kind = "oauth.code_replay"
	KindRefreshReplay  Kind = "oauth.refresh_replay"
	KindTokenRevoked   Kind = "oauth.token_revoked"
	KindClientRotated  Kind = "oauth.client_secret_rotated"
	KindTotpLockout    Kind = "totp.lockout"
	KindTotpEnabled    Kind = "totp.enabled"
	KindTotpDisabled   Kind = "totp.disabled"
	KindBackupConsumed Kind = "totp.backup_code_consumed"
)

// Event is a single audit record handed to the audit collaborator.
type Event struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	UserID   int64     `json:"user_id,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Recorder appends audit records. Implementations must tolerate being
// called on hot request paths; recording failures never abort the
// operation that triggered them.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// LogRecorder writes audit events as structured log lines. The durable
// audit store lives outside this core; this recorder is both the default
// wiring and the local trace of what was handed to it.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	entry := r.logger.Info().
		Str("audit_id", event.ID).
		Time("time", event.Time).
		Str("kind", string(event.Kind))
	if event.UserID != 0 {
		entry = entry.Int64("user_id", event.UserID)
	}
	if event.ClientID != "" {
		entry = entry.Str("client_id", event.ClientID)
	}
	if event.Detail != "" {
		entry = entry.Str("detail", event.Detail)
	}
	entry.Msg("audit event")
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}
