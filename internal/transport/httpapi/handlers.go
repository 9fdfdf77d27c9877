package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lightup/internal/alarm"
	"lightup/internal/export"
	"lightup/internal/storage"
	"lightup/internal/task/manager"
	logx "lightup/pkg/logx"
)

const maxBody = 64 << 10

type handlers struct {
	alarms Alarms
	health HealthFunc
	jobs   JobsFunc
	now    func() time.Time
	log    logx.Logger
}

type mutationBody struct {
	DataType  string `json:"dataType"`
	ID        int64  `json:"id,omitempty"`
	Success   bool   `json:"success"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type editBody struct {
	export.Alarm
	DataType string `json:"dataType"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type settingsBody struct {
	DataType        string `json:"dataType"`
	Success         bool   `json:"success"`
	SnoozeMinutes   int    `json:"snooze"`
	PrealertMinutes int    `json:"prealert"`
}

type reconcileBody struct {
	manager.Report
	DataType string `json:"dataType"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// editRequest is a partial alarm. Day flags overlay the stored pattern.
type editRequest struct {
	Hour      *int    `json:"hour"`
	Minute    *int    `json:"minute"`
	Enabled   *bool   `json:"enabled"`
	Label     *string `json:"label"`
	Monday    *bool   `json:"monday"`
	Tuesday   *bool   `json:"tuesday"`
	Wednesday *bool   `json:"wednesday"`
	Thursday  *bool   `json:"thursday"`
	Friday    *bool   `json:"friday"`
	Saturday  *bool   `json:"saturday"`
	Sunday    *bool   `json:"sunday"`
}

func (e editRequest) days() [alarm.DaysPerWeek]*bool {
	return [alarm.DaysPerWeek]*bool{e.Monday, e.Tuesday, e.Wednesday, e.Thursday, e.Friday, e.Saturday, e.Sunday}
}

func (e editRequest) patch(cur *alarm.Alarm) alarm.Patch {
	p := alarm.Patch{Hour: e.Hour, Minute: e.Minute, Enabled: e.Enabled, Label: e.Label}
	next, touched := cur.Clone(), false
	for d, v := range e.days() {
		if v != nil {
			_ = next.SetDay(alarm.Weekday(d), *v)
			touched = true
		}
	}
	if touched {
		p.Repeat = alarm.Ref(next.Repeat())
	}
	return p
}

type settingsRequest struct {
	Snooze   *int `json:"snooze"`
	Prealert *int `json:"prealert"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return alarm.Wrap(alarm.ErrInvalid, err, "decode request")
	}
	return nil
}

func alarmID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, alarm.Errorf(alarm.ErrInvalid, "bad alarm id %q", raw)
	}
	return id, nil
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.alarms.AllAlarms(r.Context())
	if err != nil {
		writeError(w, export.TypeAll, err)
		return
	}
	writeJSON(w, http.StatusOK, export.NewCollection(export.TypeAll, all))
}

func (h *handlers) active(w http.ResponseWriter, r *http.Request) {
	active, err := h.alarms.ActiveAlarms(r.Context())
	if err != nil {
		writeError(w, export.TypeActive, err)
		return
	}
	writeJSON(w, http.StatusOK, export.NewCollection(export.TypeActive, active))
}

func (h *handlers) running(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, export.NewCollection(export.TypeRunning, h.alarms.RunningAlarms()))
}

func (h *handlers) next(w http.ResponseWriter, r *http.Request) {
	a, mins, err := h.alarms.NextAlarm(r.Context())
	if err != nil {
		writeError(w, export.TypeNext, err)
		return
	}
	writeJSON(w, http.StatusOK, export.NewNext(a, mins))
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := alarmID(r)
	if err != nil {
		writeError(w, export.TypeAlarm, err)
		return
	}
	a, err := h.alarms.Alarm(r.Context(), id)
	if err != nil {
		writeError(w, export.TypeAlarm, err)
		return
	}
	writeJSON(w, http.StatusOK, export.FromAlarm(a))
}

func (h *handlers) add(w http.ResponseWriter, r *http.Request) {
	var req export.Alarm
	if err := decode(w, r, &req); err != nil {
		writeError(w, export.TypeAdd, err)
		return
	}
	a, err := h.alarms.AddAlarm(r.Context(), req.Hour, req.Minute, req.Repeat(), req.Enabled, alarm.WithLabel(req.Label))
	if err != nil {
		writeError(w, export.TypeAdd, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationBody{
		DataType:  export.TypeAdd,
		ID:        a.ID(),
		Success:   true,
		Timestamp: a.Timestamp(),
	})
}

func (h *handlers) edit(w http.ResponseWriter, r *http.Request) {
	id, err := alarmID(r)
	if err != nil {
		writeError(w, export.TypeEdit, err)
		return
	}
	var req editRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, export.TypeEdit, err)
		return
	}
	cur, err := h.alarms.Alarm(r.Context(), id)
	if err != nil {
		writeError(w, export.TypeEdit, err)
		return
	}
	p := req.patch(cur)
	if p.IsEmpty() {
		writeError(w, export.TypeEdit, alarm.Errorf(alarm.ErrInvalid, "no fields to edit"))
		return
	}
	updated, err := h.alarms.EditAlarm(r.Context(), id, p)
	if updated == nil {
		writeError(w, export.TypeEdit, err)
		return
	}
	// A partial edit still reports the stored state next to the error.
	body := editBody{Alarm: export.FromAlarm(updated), DataType: export.TypeEdit, Success: err == nil}
	status := http.StatusOK
	if err != nil {
		body.Error = err.Error()
		status = statusFor(err)
	}
	writeJSON(w, status, body)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	id, err := alarmID(r)
	if err != nil {
		writeError(w, export.TypeDeleted, err)
		return
	}
	if err := h.alarms.DeleteAlarm(r.Context(), id); err != nil {
		writeError(w, export.TypeDeleted, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationBody{DataType: export.TypeDeleted, ID: id, Success: true})
}

func (h *handlers) removeAll(w http.ResponseWriter, r *http.Request) {
	if err := h.alarms.DeleteAllAlarms(r.Context()); err != nil {
		writeError(w, export.TypeDeletedAll, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationBody{DataType: export.TypeDeletedAll, Success: true})
}

func (h *handlers) settings(w http.ResponseWriter, r *http.Request) {
	s, err := h.alarms.Settings(r.Context())
	if err != nil {
		writeError(w, export.TypeSettings, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsBody(s))
}

func (h *handlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, export.TypeSettings, err)
		return
	}
	if req.Snooze == nil && req.Prealert == nil {
		writeError(w, export.TypeSettings, alarm.Errorf(alarm.ErrInvalid, "no settings to change"))
		return
	}
	ctx := r.Context()
	if req.Snooze != nil {
		if err := h.alarms.SetSnoozeMinutes(ctx, *req.Snooze); err != nil {
			writeError(w, export.TypeSettings, err)
			return
		}
	}
	if req.Prealert != nil {
		if err := h.alarms.SetPrealertMinutes(ctx, *req.Prealert); err != nil {
			writeError(w, export.TypeSettings, err)
			return
		}
	}
	h.settings(w, r)
}

func newSettingsBody(s storage.Settings) settingsBody {
	return settingsBody{
		DataType:        export.TypeSettings,
		Success:         true,
		SnoozeMinutes:   s.SnoozeMinutes,
		PrealertMinutes: s.PrealertMinutes,
	}
}

func (h *handlers) reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.alarms.Reconcile(r.Context())
	body := reconcileBody{Report: rep, DataType: export.TypeReconcile, Success: err == nil}
	if err != nil {
		body.Error = err.Error()
		writeJSON(w, statusFor(err), body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) calendar(w http.ResponseWriter, r *http.Request) {
	all, err := h.alarms.AllAlarms(r.Context())
	if err != nil {
		writeError(w, "Calendar", err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteICS(&buf, all, h.now()); err != nil {
		h.log.Warn("calendar export failed", logx.Err(err))
		writeError(w, "Calendar", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="alarms.ics"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"success": true, "time": h.now().UTC()}
	if h.health != nil {
		out["components"] = h.health()
	}
	if h.jobs != nil {
		out["jobs"] = h.jobs()
	}
	writeJSON(w, http.StatusOK, out)
}
