package main

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/erikbos/stashfin/logging"
)

// statusWriter proxies http.ResponseWriter
// and stores the requests status and length.
type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (length int, err error) {
	if w.status == 0 {
		w.status = 200
	}
	length, err = w.ResponseWriter.Write(b)
	w.length += length
	return
}

// Flush passes through so streamed video reaches the client per chunk.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap gives http.ResponseController access to Hijack and deadlines.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// HttpLog calls ServeHTTP with a custom responsewriter that
// stores the requests status and length so we can log it.
func HttpLog(handle http.Handler) http.HandlerFunc {
	if handle == nil {
		handle = http.DefaultServeMux
	}
	return func(w http.ResponseWriter, request *http.Request) {
		start := time.Now()
		writer := statusWriter{w, 0, 0}
		handle.ServeHTTP(&writer, request)
		latency := time.Since(start)

		log := logging.WithComponent("http")
		level := zerolog.InfoLevel
		switch {
		case writer.status >= 500:
			level = zerolog.WarnLevel
		case writer.status == 0:
			// dropped or hijacked connection
			level = zerolog.DebugLevel
		}
		log.WithLevel(level).
			Str("remote", request.RemoteAddr).
			Str("method", request.Method).
			Str("url", request.URL.String()).
			Str("proto", request.Proto).
			Int("status", writer.status).
			Int("bytes", writer.length).
			Str("useragent", request.Header.Get("User-Agent")).
			Int64("latency_ms", latency.Milliseconds()).
			Msg("request")
	}
}
