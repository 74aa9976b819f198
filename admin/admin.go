// Package admin serves the internal JSON API used by the status dashboard.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/erikbos/stashfin/config"
	"github.com/erikbos/stashfin/idhash"
	"github.com/erikbos/stashfin/ipban"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/playback"
)

// PathPrefix is where the admin API is mounted.
const PathPrefix = "/admin/api"

const (
	tokenHeader = "X-Admin-Token"
	tokenTTL    = time.Hour
	// loginRateLimit is the number of password attempts per minute per address.
	loginRateLimit = 5
)

// Backend reports the connectivity of the media backend.
type Backend interface {
	Version(ctx context.Context) (string, error)
	BaseURL() string
}

type Options struct {
	Config  *config.Store
	Backend Backend
	Tracker *playback.Tracker
	Bans    *ipban.Manager
	Logs    *logging.Buffer
	// Restart is called after a restart request has been answered.
	Restart func()
	// Started is the process start time reported as uptime.
	Started time.Time
}

type Admin struct {
	config  *config.Store
	backend Backend
	tracker *playback.Tracker
	bans    *ipban.Manager
	logs    *logging.Buffer
	restart func()
	started time.Time
	now     func() time.Time
	log     zerolog.Logger

	mu     sync.Mutex
	tokens map[string]time.Time
}

func New(o Options) *Admin {
	a := &Admin{
		config:  o.Config,
		backend: o.Backend,
		tracker: o.Tracker,
		bans:    o.Bans,
		logs:    o.Logs,
		restart: o.Restart,
		started: o.Started,
		now:     time.Now,
		log:     logging.WithComponent("admin"),
		tokens:  make(map[string]time.Time),
	}
	if a.logs == nil {
		a.logs = logging.Recent()
	}
	if a.started.IsZero() {
		a.started = a.now()
	}
	return a
}

// RegisterHandlers mounts the admin API below PathPrefix.
func (a *Admin) RegisterHandlers(r *mux.Router) {
	s := r.PathPrefix(PathPrefix).Subrouter()

	gated := func(handler http.HandlerFunc) http.Handler {
		return a.gate(handler)
	}

	s.Handle("/status", http.HandlerFunc(a.statusHandler)).Methods("GET")
	s.Handle("/auth", httprate.LimitByIP(loginRateLimit, time.Minute)(http.HandlerFunc(a.authHandler))).Methods("POST")
	s.Handle("/config", gated(a.configHandler)).Methods("GET")
	s.Handle("/config", gated(a.configUpdateHandler)).Methods("PUT")
	s.Handle("/logs", http.HandlerFunc(a.logsHandler)).Methods("GET")
	s.Handle("/streams", http.HandlerFunc(a.streamsHandler)).Methods("GET")
	s.Handle("/stats", http.HandlerFunc(a.statsHandler)).Methods("GET")
	s.Handle("/stats/reset", gated(a.statsResetHandler)).Methods("POST")
	s.Handle("/restart", gated(a.restartHandler)).Methods("POST")
	s.Handle("/bans", http.HandlerFunc(a.bansHandler)).Methods("GET")
	s.Handle("/bans/{ip}", gated(a.unbanHandler)).Methods("DELETE")

	s.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "unknown admin endpoint")
	})
}

// gate requires a valid admin token once an admin password is configured.
func (a *Admin) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.password() != "" && !a.validToken(requestToken(r)) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Admin) password() string {
	return a.config.Get().Admin.Password
}

// checkPassword compares against the configured password, which may be a bcrypt hash.
func (a *Admin) checkPassword(given string) bool {
	want := a.password()
	if want == "" {
		return true
	}
	if strings.HasPrefix(want, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(given)) == 1
}

func (a *Admin) issueToken() (string, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for token, expires := range a.tokens {
		if now.After(expires) {
			delete(a.tokens, token)
		}
	}
	token := idhash.NewRandomID()
	expires := now.Add(tokenTTL)
	a.tokens[token] = expires
	return token, expires
}

func (a *Admin) validToken(token string) bool {
	if token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	expires, ok := a.tokens[token]
	if !ok {
		return false
	}
	if a.now().After(expires) {
		delete(a.tokens, token)
		return false
	}
	return true
}

func requestToken(r *http.Request) string {
	if token := r.Header.Get(tokenHeader); token != "" {
		return token
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(obj)
}
