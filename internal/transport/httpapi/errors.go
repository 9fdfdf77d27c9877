package httpapi

import (
	"encoding/json"
	"net/http"

	"lightup/internal/alarm"
)

type errorBody struct {
	DataType string `json:"dataType,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
}

func statusFor(err error) int {
	switch alarm.ErrorCode(err) {
	case alarm.ErrInvalid, alarm.ErrIdentity:
		return http.StatusBadRequest
	case alarm.ErrNotFound:
		return http.StatusNotFound
	case alarm.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, dataType string, err error) {
	writeJSON(w, statusFor(err), errorBody{
		DataType: dataType,
		Error:    err.Error(),
		Code:     string(alarm.ErrorCode(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
