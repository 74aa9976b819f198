package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/idhash"
	"github.com/erikbos/stashfin/imageresize"
	"github.com/erikbos/stashfin/ipban"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/playback"
)

// API definitions: https://swagger.emby.media/ & https://api.jellyfin.org/
// Docs: https://github.com/mediabrowser/emby/wiki

// Catalog is the browsing model served to clients.
type Catalog interface {
	Views(ctx context.Context) []catalog.FolderSummary
	ListChildren(ctx context.Context, node catalog.Node, page catalog.Page, sort catalog.Sort) (catalog.Listing, error)
	Latest(ctx context.Context, node catalog.Node, limit int) []catalog.Entry
	Search(ctx context.Context, term string, people bool, page catalog.Page, sort catalog.Sort) catalog.Listing
	ScenesWith(ctx context.Context, entity catalog.Node, page catalog.Page, sort catalog.Sort) catalog.Listing
	Lookup(ctx context.Context, node catalog.Node) (catalog.Entry, error)
	Scene(ctx context.Context, id string) (*catalog.MediaItem, error)
	LookupMany(ctx context.Context, nodes []catalog.Node) []catalog.Entry
}

// Upstream fetches raw backend resources: streams, images and captions.
type Upstream interface {
	Get(ctx context.Context, pathOrURL string, hdr http.Header) (*http.Response, error)
	Head(ctx context.Context, pathOrURL string, hdr http.Header) (*http.Response, error)
}

// Tokens stores access tokens handed out at login.
type Tokens interface {
	CreateAccessToken(ctx context.Context, t model.AccessToken) (string, error)
	GetAccessToken(ctx context.Context, token string) (*model.AccessToken, error)
	DeleteAccessToken(ctx context.Context, token string) error
}

type Options struct {
	Catalog      Catalog
	Upstream     Upstream
	Tokens       Tokens
	Tracker      *playback.Tracker
	Bans         *ipban.Manager
	Imageresizer *imageresize.Resizer
	// Unique ID of this server, used in API responses
	ServerID string
	// ServerName is name of server returned in info responses
	ServerName string
	// Username and Password are the single account clients log in with.
	// Password may be a bcrypt hash.
	Username string
	Password string
	// PadImages pads posters and thumbnails to the aspect ratio clients expect.
	PadImages bool
	// LoginRateLimit is the number of login attempts per minute per address.
	LoginRateLimit int
}

type Jellyfin struct {
	catalog      Catalog
	upstream     Upstream
	tokens       Tokens
	tracker      *playback.Tracker
	bans         *ipban.Manager
	imageresizer *imageresize.Resizer
	// Unique ID of this server, used in API responses
	serverID string
	username string
	userID   string
	// passwordHash is the bcrypt hash of the account password.
	passwordHash   []byte
	loginRateLimit int

	mu         sync.RWMutex
	serverName string
	padImages  bool

	log zerolog.Logger
}

const (
	defaultServerName     = "Stashfin"
	defaultLoginRateLimit = 10
)

// New returns the API surface. The password is hashed unless it already is
// a bcrypt hash.
func New(o *Options) (*Jellyfin, error) {
	j := &Jellyfin{
		catalog:        o.Catalog,
		upstream:       o.Upstream,
		tokens:         o.Tokens,
		tracker:        o.Tracker,
		bans:           o.Bans,
		imageresizer:   o.Imageresizer,
		serverID:       o.ServerID,
		serverName:     o.ServerName,
		username:       o.Username,
		userID:         idhash.ServerID("user:" + strings.ToLower(o.Username)),
		padImages:      o.PadImages,
		loginRateLimit: o.LoginRateLimit,
		log:            logging.WithComponent("jellyfin"),
	}
	if j.serverName == "" {
		j.serverName = defaultServerName
	}
	if j.serverID == "" {
		j.serverID = idhash.ServerID(j.serverName)
	}
	if j.loginRateLimit <= 0 {
		j.loginRateLimit = defaultLoginRateLimit
	}
	if j.bans == nil {
		j.bans = ipban.New(ipban.Options{})
	}
	if j.tracker == nil {
		j.tracker = playback.New(playback.Options{})
	}
	if j.imageresizer == nil {
		r, err := imageresize.New(imageresize.Options{})
		if err != nil {
			return nil, err
		}
		j.imageresizer = r
	}

	if strings.HasPrefix(o.Password, "$2") {
		j.passwordHash = []byte(o.Password)
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		j.passwordHash = hash
	}
	return j, nil
}

// Reconfigure applies settings that can change while running.
func (j *Jellyfin) Reconfigure(serverName string, padImages bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if serverName != "" {
		j.serverName = serverName
	}
	j.padImages = padImages
}

func (j *Jellyfin) name() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.serverName
}

func (j *Jellyfin) pad() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.padImages
}

func (j *Jellyfin) RegisterHandlers(s *mux.Router) {
	r := s.UseEncodedPath()

	// middleware for endpoints to check valid auth token
	middleware := func(handler http.HandlerFunc) http.Handler {
		return handlers.CompressHandler(j.authmiddleware(http.HandlerFunc(handler)))
	}
	// media is passed through as is, compressing it breaks range requests
	uncompressed := func(handler http.HandlerFunc) http.Handler {
		return j.authmiddleware(http.HandlerFunc(handler))
	}
	loginLimiter := httprate.LimitByIP(j.loginRateLimit, time.Minute)

	r.Handle("/health", http.HandlerFunc(j.healthHandler))
	r.Handle("/System/Endpoint", middleware(j.systemEndpointHandler))
	r.Handle("/System/Ping", http.HandlerFunc(j.systemPingHandler))
	r.Handle("/System/Info", middleware(j.systemInfoHandler))
	r.Handle("/System/Info/Public", http.HandlerFunc(j.systemInfoPublicHandler))
	r.Handle("/Plugins", middleware(j.pluginsHandler))
	r.Handle("/GetUtcTime", http.HandlerFunc(j.getUtcTimeHandler))

	r.Handle("/Users/AuthenticateByName", loginLimiter(http.HandlerFunc(j.usersAuthenticateByNameHandler))).Methods("POST")
	r.Handle("/Users/authenticatebyname", loginLimiter(http.HandlerFunc(j.usersAuthenticateByNameHandler))).Methods("POST")
	r.Handle("/Sessions/Logout", middleware(j.sessionsLogoutHandler)).Methods("POST")
	r.Handle("/QuickConnect/Enabled", http.HandlerFunc(j.quickConnectEnabledHandler))

	r.Handle("/Users", middleware(j.usersAllHandler))
	r.Handle("/Users/Me", middleware(j.usersMeHandler))
	r.Handle("/Users/Public", http.HandlerFunc(j.usersPublicHandler))
	r.Handle("/Users/{user}", middleware(j.usersHandler))

	// Legacy endpoints for Jellyfin <10.9
	r.Handle("/Users/{user}/Views", middleware(j.usersViewsHandler))
	r.Handle("/Users/{user}/GroupingOptions", middleware(j.emptyListHandler))
	r.Handle("/Users/{user}/Items", middleware(j.usersItemsHandler))
	r.Handle("/Users/{user}/Items/Latest", middleware(j.usersItemsLatestHandler))
	r.Handle("/Users/{user}/Items/Resume", middleware(j.emptyItemsHandler))
	r.Handle("/Users/{user}/Items/{item}", middleware(j.usersItemHandler))
	r.Handle("/Users/{user}/Items/{item}/Intros", middleware(j.emptyItemsHandler))

	r.Handle("/UserViews", middleware(j.usersViewsHandler))
	r.Handle("/UserViews/GroupingOptions", middleware(j.emptyListHandler))
	r.Handle("/UserItems/Resume", middleware(j.emptyItemsHandler))
	r.Handle("/UserItems/{item}/Userdata", middleware(j.usersItemUserDataHandler))

	r.Handle("/DisplayPreferences/{id}", middleware(j.displayPreferencesHandler))

	r.Handle("/Library/MediaFolders", middleware(j.usersViewsHandler))
	r.Handle("/Library/VirtualFolders", middleware(j.libraryVirtualFoldersHandler))

	r.Handle("/Items", middleware(j.usersItemsHandler))
	r.Handle("/Items/Counts", middleware(j.usersItemsCountsHandler))
	r.Handle("/Items/Filters", middleware(j.usersItemsFiltersHandler))
	r.Handle("/Items/Latest", middleware(j.usersItemsLatestHandler))
	r.Handle("/Items/Resume", middleware(j.emptyItemsHandler))
	r.Handle("/Items/{item}", middleware(j.usersItemHandler))
	r.Handle("/Items/{item}/Ancestors", middleware(j.usersItemsAncestorsHandler))
	// Images can be fetched without auth, https://github.com/jellyfin/jellyfin/issues/13988
	r.Handle("/Items/{item}/Images/{type}", http.HandlerFunc(j.itemsImagesHandler)).Methods("GET", "HEAD")
	r.Handle("/Items/{item}/Images/{type}/{index}", http.HandlerFunc(j.itemsImagesHandler)).Methods("GET", "HEAD")
	r.Handle("/Items/{item}/Intros", middleware(j.emptyItemsHandler))
	r.Handle("/Items/{item}/PlaybackInfo", middleware(j.itemsPlaybackInfoHandler))
	r.Handle("/Items/{item}/Similar", middleware(j.emptyItemsHandler))
	r.Handle("/Items/{item}/InstantMix", middleware(j.emptyItemsHandler))
	r.Handle("/Items/{item}/SpecialFeatures", middleware(j.emptyListHandler))
	r.Handle("/Items/{item}/ThemeMedia", middleware(j.emptyItemsHandler))

	r.Handle("/Search/Hints", middleware(j.searchHintsHandler))

	r.Handle("/Shows/NextUp", middleware(j.emptyItemsHandler))
	r.Handle("/Movies/Recommendations", middleware(j.emptyListHandler))
	r.Handle("/MediaSegments/{item}", middleware(j.emptyItemsHandler))
	r.Handle("/Years", middleware(j.emptyItemsHandler))
	r.Handle("/Genres", middleware(j.emptyItemsHandler))
	r.Handle("/Persons", middleware(j.emptyItemsHandler))
	r.Handle("/Studios", middleware(j.emptyItemsHandler))
	r.Handle("/Playlists", middleware(j.emptyItemsHandler))
	r.Handle("/Collections", middleware(j.emptyItemsHandler))

	r.Handle("/Videos/{item}/stream", uncompressed(j.videoStreamHandler)).Methods("GET", "HEAD")
	r.Handle("/Videos/{item}/stream.{container}", uncompressed(j.videoStreamHandler)).Methods("GET", "HEAD")
	// required for Vidhub to work
	r.Handle("/videos/{item}/stream", uncompressed(j.videoStreamHandler)).Methods("GET", "HEAD")
	r.Handle("/videos/{item}/stream.{container}", uncompressed(j.videoStreamHandler)).Methods("GET", "HEAD")
	r.Handle("/Items/{item}/Download", uncompressed(j.videoStreamHandler)).Methods("GET", "HEAD")
	r.Handle("/Videos/{item}/{source}/Subtitles/{index}/Stream.{format}", uncompressed(j.subtitleStreamHandler))
	r.Handle("/Videos/{item}/{source}/Subtitles/{index}/{start}/Stream.{format}", uncompressed(j.subtitleStreamHandler))

	r.Handle("/Sessions/Capabilities", middleware(j.sessionsCapabilitiesHandler))
	r.Handle("/Sessions/Capabilities/Full", middleware(j.sessionsCapabilitiesHandler))
	r.Handle("/Sessions/Playing", middleware(j.sessionsPlayingHandler)).Methods("POST")
	r.Handle("/Sessions/Playing/Progress", middleware(j.sessionsPlayingProgressHandler)).Methods("POST")
	r.Handle("/Sessions/Playing/Ping", middleware(j.sessionsPlayingProgressHandler)).Methods("POST")
	r.Handle("/Sessions/Playing/Stopped", middleware(j.sessionsPlayingStoppedHandler)).Methods("POST")
	r.Handle("/Sessions", middleware(j.sessionsHandler))

	r.Handle("/UserPlayedItems/{item}", middleware(j.usersItemUserDataHandler)).Methods("POST", "DELETE")
	r.Handle("/UserFavoriteItems/{item}", middleware(j.usersItemUserDataHandler)).Methods("POST", "DELETE")
	// userdata legacy endpoints for Jellyfin <10.9
	r.Handle("/Users/{user}/PlayedItems/{item}", middleware(j.usersItemUserDataHandler)).Methods("POST", "DELETE")
	r.Handle("/Users/{user}/FavoriteItems/{item}", middleware(j.usersItemUserDataHandler)).Methods("POST", "DELETE")

	// Branding
	r.HandleFunc("/Branding/Configuration", j.brandingConfigurationHandler)
	r.HandleFunc("/Branding/Css", j.brandingCssHandler)
	r.HandleFunc("/Branding/Css.css", j.brandingCssHandler)

	// Localization
	r.HandleFunc("/Localization/Countries", j.localizationCountriesHandler)
	r.HandleFunc("/Localization/Cultures", j.localizationCulturesHandler)
	r.HandleFunc("/Localization/Options", j.localizationOptionsHandler)
	r.HandleFunc("/Localization/ParentalRatings", j.localizationParentalRatingsHandler)

	r.NotFoundHandler = http.HandlerFunc(j.notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(j.notFoundHandler)
}

// notFoundHandler answers unknown routes with an empty collection so
// probing clients keep working.
func (j *Jellyfin) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	j.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("unhandled route")
	j.emptyItemsHandler(w, r)
}

// emptyItemsHandler returns an empty item collection.
func (j *Jellyfin) emptyItemsHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(UserItemsResponse{Items: []JFItem{}}, w)
}

// emptyListHandler returns an empty JSON array.
func (j *Jellyfin) emptyListHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON([]JFItem{}, w)
}

func serveJSON(obj any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(obj)
}

func (j *Jellyfin) cache1h(w http.ResponseWriter) {
	w.Header().Set("cache-control", "max-age=3600")
}

// queryInt returns the integer query parameter name, or def when absent or invalid.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// queryList splits a comma separated query parameter.
func queryList(r *http.Request, name string) []string {
	var list []string
	for _, v := range r.URL.Query()[name] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
	}
	return list
}

// parseNode parses an item id from the route, reporting not found to the client on failure.
func parseNode(w http.ResponseWriter, id string) (catalog.Node, bool) {
	node, err := catalog.ParseNode(id)
	if err != nil {
		apierror(w, "item not found", http.StatusNotFound)
		return catalog.Node{}, false
	}
	return node, true
}

// lookupFailed maps a catalog lookup error to an API error.
func (j *Jellyfin) lookupFailed(w http.ResponseWriter, node catalog.Node, err error) {
	if !errors.Is(err, catalog.ErrNotFound) {
		j.log.Warn().Err(err).Str("item", node.String()).Msg("item lookup failed")
	}
	apierror(w, "item not found", http.StatusNotFound)
}
