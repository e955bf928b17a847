package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// SyncEntry is one pending progress update waiting to be delivered to the
// remote server. There is at most one entry per book; ID doubles as the
// queue position and never changes when the payload is replaced.
type SyncEntry struct {
	bun.BaseModel `bun:"table:progress_sync_entries,alias:pse"`

	ID            int              `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	BookUUID      string           `bun:",nullzero" json:"book_uuid"`
	Payload       string           `bun:",nullzero" json:"-"`
	PayloadParsed *ProgressPayload `bun:"-" json:"payload"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Revision      int              `json:"revision"`
	Attempts      int              `json:"attempts"`
	LastError     *string          `json:"last_error,omitempty"`
	NextAttemptAt *time.Time       `json:"next_attempt_at,omitempty"`
}

func (e *SyncEntry) MarshalPayload(p ProgressPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return errors.WithStack(err)
	}
	e.Payload = string(b)
	e.PayloadParsed = &p
	e.GeneratedAt = p.Timestamp
	return nil
}

func (e *SyncEntry) UnmarshalPayload() error {
	p := &ProgressPayload{}
	if err := json.Unmarshal([]byte(e.Payload), p); err != nil {
		return errors.WithStack(err)
	}
	e.PayloadParsed = p
	return nil
}
