package export

import (
	"encoding/json"
	"io"

	"lightup/internal/alarm"
)

// Data types carried in the "dataType" field.
const (
	TypeAll        = "All alarms"
	TypeActive     = "Active alarms"
	TypeRunning    = "Running alarms"
	TypeNext       = "Next alarm"
	TypeAlarm      = "Alarm"
	TypeAdd        = "Add alarm"
	TypeEdit       = "Edit alarm"
	TypeDeleted    = "Deleted alarm"
	TypeDeletedAll = "Deleted all alarms"
	TypeSettings   = "Settings"
	TypeReconcile  = "Reconcile"
)

// Alarm is the flat JSON form of an alarm.
type Alarm struct {
	ID        int64  `json:"id"`
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
	Enabled   bool   `json:"enabled"`
	Label     string `json:"label"`
	Timestamp int64  `json:"timestamp"`
	Monday    bool   `json:"monday"`
	Tuesday   bool   `json:"tuesday"`
	Wednesday bool   `json:"wednesday"`
	Thursday  bool   `json:"thursday"`
	Friday    bool   `json:"friday"`
	Saturday  bool   `json:"saturday"`
	Sunday    bool   `json:"sunday"`
}

// Collection wraps a list of alarms.
type Collection struct {
	DataType string  `json:"dataType"`
	Size     int     `json:"size"`
	Alarms   []Alarm `json:"alarms"`
}

// NextAlarm is the next alarm plus the minutes until it fires.
type NextAlarm struct {
	DataType       string `json:"dataType"`
	Alarm          *Alarm `json:"alarm"`
	MinutesToAlert int    `json:"minutesToAlert"`
}

func FromAlarm(a *alarm.Alarm) Alarm {
	r := a.Repeat()
	return Alarm{
		ID:        a.ID(),
		Hour:      a.Hour(),
		Minute:    a.Minute(),
		Enabled:   a.Enabled(),
		Label:     a.Label(),
		Timestamp: a.Timestamp(),
		Monday:    r[alarm.Monday],
		Tuesday:   r[alarm.Tuesday],
		Wednesday: r[alarm.Wednesday],
		Thursday:  r[alarm.Thursday],
		Friday:    r[alarm.Friday],
		Saturday:  r[alarm.Saturday],
		Sunday:    r[alarm.Sunday],
	}
}

// Repeat returns the weekday pattern of the flat form.
func (a Alarm) Repeat() alarm.Repeat {
	return alarm.Repeat{a.Monday, a.Tuesday, a.Wednesday, a.Thursday, a.Friday, a.Saturday, a.Sunday}
}

// ToAlarm validates the flat form and builds an alarm. The id is kept only
// when positive.
func (a Alarm) ToAlarm() (*alarm.Alarm, error) {
	opts := []alarm.Option{alarm.WithLabel(a.Label)}
	if a.ID > 0 {
		opts = append(opts, alarm.WithID(a.ID))
	}
	if a.Timestamp > 0 {
		opts = append(opts, alarm.WithTimestamp(a.Timestamp))
	}
	return alarm.New(a.Hour, a.Minute, a.Repeat(), a.Enabled, opts...)
}

func NewCollection(dataType string, alarms []*alarm.Alarm) Collection {
	out := Collection{DataType: dataType, Size: len(alarms), Alarms: make([]Alarm, 0, len(alarms))}
	for _, a := range alarms {
		out.Alarms = append(out.Alarms, FromAlarm(a))
	}
	return out
}

// NewNext builds the next-alarm payload. A nil alarm yields a null "alarm".
func NewNext(a *alarm.Alarm, minutes int) NextAlarm {
	out := NextAlarm{DataType: TypeNext}
	if a != nil {
		fa := FromAlarm(a)
		out.Alarm = &fa
		out.MinutesToAlert = minutes
	}
	return out
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DecodeAlarms reads a collection, or a bare array of alarms.
func DecodeAlarms(r io.Reader) ([]Alarm, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, alarm.Wrap(alarm.ErrInvalid, err, "decode alarms")
	}
	var list []Alarm
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var c Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, alarm.Wrap(alarm.ErrInvalid, err, "decode alarms")
	}
	return c.Alarms, nil
}
