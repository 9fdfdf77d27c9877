package notifier

import (
	"context"
	"time"
)

// Event types published by the notifier.
const (
	EventQueued  = "notifier.queued"
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDropped = "notifier.dropped"
	EventDeduped = "notifier.deduped"
)

// Config controls the pipeline. Zero values take defaults.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
	// DedupMaxEntries caps the in-memory dedup table.
	DedupMaxEntries int
	SendTimeout     time.Duration

	// BreakerTrip consecutive failed deliveries open the circuit. Zero
	// means 5, negative disables the breaker.
	BreakerTrip       int
	BreakerBase       time.Duration
	BreakerMaxDelay   time.Duration
	BreakerResetAfter time.Duration
}

type Kind string

const (
	KindAlarm     Kind = "alarm"
	KindPrealert  Kind = "prealert"
	KindPostalert Kind = "postalert"
	KindSystem    Kind = "system"
)

type Notification struct {
	Kind    Kind
	AlarmID int64
	// FiringID ties the notification to one firing; it is the dedup key
	// when set.
	FiringID string
	Text     string
	At       time.Time
}

// Sender delivers rendered text. The telegram transport implements it.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// DedupStore persists suppression windows across restarts.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

type HistoryItem struct {
	At       time.Time `json:"at"`
	Kind     Kind      `json:"kind"`
	AlarmID  int64     `json:"alarm_id,omitempty"`
	FiringID string    `json:"firing_id,omitempty"`
	Text     string    `json:"text"`
	Error    string    `json:"error,omitempty"`
}

// EventData is the payload of notifier bus events.
type EventData struct {
	Kind     Kind      `json:"kind"`
	FiringID string    `json:"firing_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
