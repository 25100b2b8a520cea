package middleware

import (
	"net/http"
	"strconv"
)

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	HTTPRequest(method, statusClass string)
}

// Metrics returns middleware that counts requests by method and status class
// ("2xx", "4xx", ...).
func Metrics(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrap(w)
			next.ServeHTTP(rw, r)
			rec.HTTPRequest(r.Method, statusClass(rw.statusCode))
		})
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
