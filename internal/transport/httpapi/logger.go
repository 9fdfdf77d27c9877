package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"

	logx "lightup/pkg/logx"
)

var (
	status1xx = color.New(color.FgBlue)
	status2xx = color.New(color.FgGreen)
	status3xx = color.New(color.FgCyan)
	status4xx = color.New(color.FgYellow)
	status5xx = color.New(color.FgRed)
)

func statusColor(code int) *color.Color {
	switch {
	case code < 200:
		return status1xx
	case code < 300:
		return status2xx
	case code < 400:
		return status3xx
	case code < 500:
		return status4xx
	default:
		return status5xx
	}
}

// requestLogger logs one line per request with a colored status.
func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			defer func() {
				code := ww.Status()
				if code == 0 {
					code = http.StatusOK
				}
				msg := fmt.Sprintf("%s %s - %s", r.Method, r.RequestURI, statusColor(code).Sprintf("%03d", code))
				fields := []logx.Field{
					logx.String("request_id", middleware.GetReqID(r.Context())),
					logx.Int("bytes", ww.BytesWritten()),
					logx.Duration("duration", time.Since(t1)),
				}
				if code >= 500 {
					log.Warn(msg, fields...)
					return
				}
				log.Debug(msg, fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
