package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/erikbos/stashfin/config"
	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/playback"
)

const (
	backendProbeTimeout = 5 * time.Second
	defaultLogLimit     = 200
)

type backendStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

type statusResponse struct {
	Running       bool          `json:"running"`
	Started       time.Time     `json:"started"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
	Backend       backendStatus `json:"backend"`
	ActiveStreams int           `json:"activeStreams"`
	AuthRequired  bool          `json:"authRequired"`
}

// /admin/api/status
func (a *Admin) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Running:       true,
		Started:       a.started,
		UptimeSeconds: int64(a.now().Sub(a.started) / time.Second),
		AuthRequired:  a.password() != "",
	}
	if a.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), backendProbeTimeout)
		defer cancel()

		resp.Backend.URL = a.backend.BaseURL()
		version, err := a.backend.Version(ctx)
		if err != nil {
			resp.Backend.Error = err.Error()
		} else {
			resp.Backend.Connected = true
			resp.Backend.Version = version
		}
	}
	if a.tracker != nil {
		resp.ActiveStreams = len(a.tracker.Streams())
	}
	writeJSON(w, http.StatusOK, resp)
}

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// /admin/api/auth
func (a *Admin) authHandler(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not parse request")
		return
	}
	if !a.checkPassword(req.Password) {
		ip := clientIP(r)
		if a.bans != nil {
			a.bans.RecordFailure(r.Context(), ip, "admin login")
		}
		a.log.Info().Str("ip", ip).Msg("admin login failed")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid password")
		return
	}
	token, expires := a.issueToken()
	writeJSON(w, http.StatusOK, authResponse{Token: token, Expires: expires})
}

// /admin/api/config
func (a *Admin) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.config.Views())
}

type configUpdateResponse struct {
	config.UpdateResult
	Config map[string]config.View `json:"config"`
}

// /admin/api/config
//
// The body maps dotted config keys to their new values.
func (a *Admin) configUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not parse request")
		return
	}
	next, err := config.Merge(a.config.Get(), changes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}
	result, err := a.config.Update(next)
	if err != nil {
		if errors.Is(err, config.ErrReadOnly) {
			writeError(w, http.StatusConflict, "read_only", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}
	a.log.Info().Strs("changed", result.Changed).Strs("restartRequired", result.RestartRequired).Msg("config updated")
	writeJSON(w, http.StatusOK, configUpdateResponse{UpdateResult: result, Config: a.config.Views()})
}

// /admin/api/logs?level=warn&q=stash&limit=50
func (a *Admin) logsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultLogLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	entries := a.logs.Entries(logging.Query{
		MinLevel: q.Get("level"),
		Text:     q.Get("q"),
		Limit:    limit,
	})
	writeJSON(w, http.StatusOK, entries)
}

type streamResponse struct {
	playback.Stream
	PositionSeconds int64 `json:"positionSeconds"`
	DurationSeconds int64 `json:"durationSeconds"`
}

// /admin/api/streams
func (a *Admin) streamsHandler(w http.ResponseWriter, r *http.Request) {
	response := []streamResponse{}
	if a.tracker != nil {
		for _, s := range a.tracker.Streams() {
			response = append(response, streamResponse{
				Stream:          s,
				PositionSeconds: int64(s.Position() / time.Second),
				DurationSeconds: int64(s.Duration / time.Second),
			})
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// /admin/api/stats
func (a *Admin) statsHandler(w http.ResponseWriter, r *http.Request) {
	var stats model.Stats
	if a.tracker != nil {
		stats = a.tracker.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// /admin/api/stats/reset
func (a *Admin) statsResetHandler(w http.ResponseWriter, r *http.Request) {
	if a.tracker != nil {
		a.tracker.ResetStats()
	}
	w.WriteHeader(http.StatusNoContent)
}

// /admin/api/restart
func (a *Admin) restartHandler(w http.ResponseWriter, r *http.Request) {
	if a.restart == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "restart not available")
		return
	}
	a.log.Warn().Str("ip", clientIP(r)).Msg("restart requested")
	writeJSON(w, http.StatusAccepted, map[string]bool{"restarting": true})
	go a.restart()
}

// /admin/api/bans
func (a *Admin) bansHandler(w http.ResponseWriter, r *http.Request) {
	bans := []model.Ban{}
	if a.bans != nil {
		bans = a.bans.List()
	}
	writeJSON(w, http.StatusOK, bans)
}

// /admin/api/bans/{ip}
func (a *Admin) unbanHandler(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if a.bans == nil {
		writeError(w, http.StatusNotFound, "not_found", "address is not banned")
		return
	}
	if err := a.bans.Unban(r.Context(), ip); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "address is not banned")
			return
		}
		a.log.Error().Err(err).Str("ip", ip).Msg("unban failed")
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
