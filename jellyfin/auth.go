package jellyfin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/idhash"
	"github.com/erikbos/stashfin/metrics"
)

type contextKey string

const contextAccessTokenDetails contextKey = "accesstokendetails"

// authSchemeValues holds parsed emby authorization scheme values
type authSchemeValues struct {
	device   string
	deviceID string
	token    string
	client   string
	version  string
}

var authKeyValue = regexp.MustCompile(`(\w+)="(.*?)"`)

// POST /Users/AuthenticateByName
//
// usersAuthenticateByNameHandler authenticates a user by name
func (j *Jellyfin) usersAuthenticateByNameHandler(w http.ResponseWriter, r *http.Request) {
	var request JFAuthenticateUserByNameRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		apierror(w, "invalid request", http.StatusBadRequest)
		return
	}

	if !strings.EqualFold(request.Username, j.username) ||
		bcrypt.CompareHashAndPassword(j.passwordHash, []byte(request.Pw)) != nil {
		j.authFailed(w, r, "invalid username or password")
		return
	}

	// Device details are optional, not all clients send them on login.
	embyHeader := parseAuthHeader(r)
	if embyHeader == nil {
		embyHeader = &authSchemeValues{}
	}
	if embyHeader.deviceID == "" {
		embyHeader.deviceID = uuid.NewString()
	}

	now := time.Now().UTC()
	remoteAddress := clientIP(r)
	accesstoken, err := j.tokens.CreateAccessToken(r.Context(), model.AccessToken{
		UserID:             j.userID,
		DeviceId:           embyHeader.deviceID,
		DeviceName:         embyHeader.device,
		ApplicationName:    embyHeader.client,
		ApplicationVersion: embyHeader.version,
		RemoteAddress:      remoteAddress,
		Created:            now,
		LastUsed:           now,
	})
	if err != nil {
		j.log.Error().Err(err).Msg("failed to generate access token")
		apierror(w, "failed to generate access token", http.StatusInternalServerError)
		return
	}
	j.tracker.RecordAuth(true)
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	j.log.Info().Str("ip", remoteAddress).Str("client", embyHeader.client).Str("device", embyHeader.device).Msg("user logged in")

	session := &JFSessionInfo{
		ID:                 idhash.ServerID("session:" + embyHeader.deviceID),
		UserID:             j.userID,
		UserName:           j.username,
		Client:             embyHeader.client,
		DeviceName:         embyHeader.device,
		DeviceID:           embyHeader.deviceID,
		ApplicationVersion: embyHeader.version,
		RemoteEndPoint:     remoteAddress,
		LastActivityDate:   now,
		IsActive:           true,
		ServerID:           j.serverID,
		AdditionalUsers:    []string{},
		PlayableMediaTypes: []string{"Video"},
		SupportedCommands:  []string{},
	}
	response := JFAuthenticateByNameResponse{
		AccessToken: accesstoken,
		SessionInfo: session,
		ServerId:    j.serverID,
		User:        j.makeJFUser(),
	}
	serveJSON(response, w)
}

// POST /Sessions/Logout
//
// sessionsLogoutHandler deletes the access token of the caller
func (j *Jellyfin) sessionsLogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := requestToken(r); token != "" {
		if err := j.tokens.DeleteAccessToken(r.Context(), token); err != nil {
			j.log.Debug().Err(err).Msg("logout of unknown token")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /QuickConnect/Enabled
//
// quickConnectEnabledHandler returns boolean whether quickconnect is enabled.
func (j *Jellyfin) quickConnectEnabledHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(false, w)
}

// parseAuthHeader parses emby authorization header, nil when there is none.
func parseAuthHeader(r *http.Request) *authSchemeValues {
	authHeader := r.Header.Get("authorization")
	if !isEmbyScheme(authHeader) {
		authHeader = r.Header.Get("x-emby-authorization")
	}
	if !isEmbyScheme(authHeader) {
		return nil
	}

	// MediaBrowser Client="Jellyfin%20Media%20Player", Device="mbp", DeviceId="0dabe147-5d08-4e70-adde-d6b778b725aa", Version="1.11.1", Token="aea78abca5744378b2a2badf710e7307"
	// MediaBrowser Device="Mac", DeviceId="0dabe147-5d08-4e70-adde-d6b778b725aa", Token="826c2aa3596b47f2a386dd2811248649", Client="Infuse-Direct", Version="8.0.9"
	var result authSchemeValues
	for _, match := range authKeyValue.FindAllStringSubmatch(authHeader, -1) {
		switch match[1] {
		case "Client":
			result.client = match[2]
		case "Device":
			result.device = match[2]
		case "DeviceId":
			result.deviceID = match[2]
		case "Version":
			result.version = match[2]
		case "Token":
			result.token = match[2]
		}
	}
	return &result
}

func isEmbyScheme(header string) bool {
	return strings.HasPrefix(header, "MediaBrowser ") || strings.HasPrefix(header, "Emby ")
}

// requestToken extracts the access token of a request. Headers are checked
// in fixed order, the first one present wins.
func requestToken(r *http.Request) string {
	if t := r.Header.Get("x-emby-token"); t != "" {
		return t
	}
	if t := r.Header.Get("x-mediabrowser-token"); t != "" {
		return t
	}
	if t, ok := strings.CutPrefix(r.Header.Get("authorization"), "Bearer "); ok && t != "" {
		return strings.TrimSpace(t)
	}
	if embyHeader := parseAuthHeader(r); embyHeader != nil && embyHeader.token != "" {
		return embyHeader.token
	}
	// Needed for Streamyfin's embedded VLC
	return r.URL.Query().Get("api_key")
}

// authMiddleware validates auth token, token can be provided in various headers
func (j *Jellyfin) authmiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			j.authFailed(w, r, "no token provided")
			return
		}
		tokendetails, err := j.tokens.GetAccessToken(r.Context(), token)
		if err != nil {
			j.authFailed(w, r, "invalid access token")
			return
		}
		ctx := context.WithValue(r.Context(), contextAccessTokenDetails, tokendetails)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authFailed counts a failed authentication towards a ban of the client
// address and responds unauthorized.
func (j *Jellyfin) authFailed(w http.ResponseWriter, r *http.Request, reason string) {
	ip := clientIP(r)
	j.bans.RecordFailure(r.Context(), ip, reason)
	j.tracker.RecordAuth(false)
	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	j.log.Info().Str("ip", ip).Str("path", r.URL.Path).Msg(reason)
	apierror(w, reason, http.StatusUnauthorized)
}

// getAccessTokenDetails returns access token details from the
// request context populated by authmiddleware()
func getAccessTokenDetails(r *http.Request) *model.AccessToken {
	details, _ := r.Context().Value(contextAccessTokenDetails).(*model.AccessToken)
	return details
}

// BanGate drops connections from banned addresses without a response.
func (j *Jellyfin) BanGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if j.bans.IsBanned(clientIP(r)) {
			metrics.BannedConnections.Inc()
			dropConnection(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// dropConnection closes the client connection. When the connection cannot
// be taken over, e.g. on HTTP/2, the handler aborts which resets the stream.
func dropConnection(w http.ResponseWriter) {
	conn, _, err := http.NewResponseController(w).Hijack()
	if err == nil {
		_ = conn.Close()
		return
	}
	panic(http.ErrAbortHandler)
}

// clientIP returns the address of the client. Behind a reverse proxy
// RemoteAddr has been replaced by the forwarded address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
