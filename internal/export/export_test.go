package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightup/internal/alarm"
)

func TestCollectionShape(t *testing.T) {
	t.Parallel()
	a := alarm.MustNew(9, 30, alarm.Days(alarm.Monday, alarm.Thursday), true,
		alarm.WithID(3), alarm.WithLabel("Work"), alarm.WithTimestamp(1700000000))

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewCollection(TypeAll, []*alarm.Alarm{a})))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "All alarms", got["dataType"])
	assert.EqualValues(t, 1, got["size"])

	list := got["alarms"].([]any)
	require.Len(t, list, 1)
	item := list[0].(map[string]any)
	assert.EqualValues(t, 3, item["id"])
	assert.EqualValues(t, 9, item["hour"])
	assert.EqualValues(t, 30, item["minute"])
	assert.Equal(t, "Work", item["label"])
	assert.EqualValues(t, 1700000000, item["timestamp"])
	assert.Equal(t, true, item["monday"])
	assert.Equal(t, false, item["tuesday"])
	assert.Equal(t, true, item["thursday"])
	assert.Equal(t, false, item["sunday"])
}

func TestRoundTripThroughFlatForm(t *testing.T) {
	t.Parallel()
	a := alarm.MustNew(7, 10, alarm.Weekdays, false, alarm.WithID(1), alarm.WithLabel("Weekdays"))
	back, err := FromAlarm(a).ToAlarm()
	require.NoError(t, err)
	assert.True(t, a.Equal(back), "got %v", back)
}

func TestToAlarmRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	_, err := Alarm{Hour: 24, Minute: 0, Monday: true}.ToAlarm()
	require.Error(t, err)
	assert.True(t, alarm.IsCode(err, alarm.ErrInvalid))
}

func TestNextWithoutAlarm(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewNext(nil, 0)))
	assert.Contains(t, buf.String(), `"alarm": null`)
}

func TestDecodeAlarmsAcceptsBothForms(t *testing.T) {
	t.Parallel()
	bare := `[{"id":0,"hour":6,"minute":0,"enabled":true,"label":"x","saturday":true}]`
	list, err := DecodeAlarms(strings.NewReader(bare))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Saturday)

	wrapped := `{"dataType":"All alarms","size":1,"alarms":[{"hour":6,"minute":5,"sunday":true}]}`
	list, err = DecodeAlarms(strings.NewReader(wrapped))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Minute)

	_, err = DecodeAlarms(strings.NewReader("nope"))
	assert.True(t, alarm.IsCode(err, alarm.ErrInvalid))
}

func TestCalendarSkipsInactiveAlarms(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) // Monday
	alarms := []*alarm.Alarm{
		alarm.MustNew(9, 30, alarm.Days(alarm.Monday, alarm.Thursday), true, alarm.WithID(1), alarm.WithLabel("Work")),
		alarm.MustNew(10, 30, alarm.Weekend, false, alarm.WithID(2)),
	}
	cal, err := Calendar(alarms, from)
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 1)
	ev := events[0]

	uid, err := ev.Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "alarm-1@lightup", uid)

	start, err := ev.DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), start)

	rule := ev.Props.Get(ical.PropRecurrenceRule)
	require.NotNil(t, rule)
	assert.Contains(t, rule.Value, "FREQ=WEEKLY")
	assert.Contains(t, rule.Value, "BYDAY=MO,TH")
}

func TestWriteICS(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC) // Wednesday
	a := alarm.MustNew(7, 0, alarm.Weekdays, true, alarm.WithID(4))

	var buf bytes.Buffer
	require.NoError(t, WriteICS(&buf, []*alarm.Alarm{a}, from))
	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "PRODID:"+ProductID)
	assert.Contains(t, out, "SUMMARY:Alarm 4 07:00")
	assert.Contains(t, out, "DTSTART:20240104T070000Z")
	assert.Contains(t, out, "RRULE:")
}
