package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// routeShapes lists the path shapes the API serves. A segment "*" matches any
// single ID segment and is reported as "{id}".
var routeShapes = [][]string{
	{"scenes", "*"},
	{"scenes", "*", "posts"},
	{"scenes", "*", "roster"},
	{"scenes", "*", "roster", "*"},
	{"scenes", "*", "rolls"},
	{"scenes", "*", "archive"},
	{"scenes", "*", "presence"},
	{"campaigns", "*"},
	{"campaigns", "*", "scenes"},
	{"campaigns", "*", "characters"},
	{"campaigns", "*", "phase"},
	{"posts", "*"},
	{"posts", "*", "unhide"},
	{"posts", "*", "finalize"},
	{"posts", "*", "rolls"},
	{"rolls", "*", "resolve"},
	{"rolls", "*", "invalidate"},
	{"characters", "*"},
	{"characters", "*", "reassign"},
	{"characters", "*", "archive"},
}

func isOpsPath(path string) bool {
	return path == "/health" || path == "/ready" || path == "/metrics"
}

// normalizePath maps a request path onto its route shape, replacing IDs with
// "{id}" to bound label cardinality. Unknown paths collapse to "other".
func normalizePath(path string) string {
	if path == "/" || isOpsPath(path) {
		return path
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 1 {
		switch segs[0] {
		case "scenes", "characters", "campaigns", "posts", "rolls":
			return path
		}
		return "other"
	}
	for _, shape := range routeShapes {
		if len(shape) != len(segs) {
			continue
		}
		out := make([]string, len(shape))
		matched := true
		for i, s := range shape {
			switch {
			case s == "*" && segs[i] != "":
				out[i] = "{id}"
			case s == segs[i]:
				out[i] = s
			default:
				matched = false
			}
			if !matched {
				break
			}
		}
		if matched {
			return "/" + strings.Join(out, "/")
		}
	}
	return "other"
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// HTTPMetrics records request duration, count and sizes per method,
// normalized path and status. Health, readiness and scrape requests are skipped.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpsPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(mrw, r)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
