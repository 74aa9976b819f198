package jellyfin

import (
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const (
	// serverVersion is the Jellyfin release we present as, clients gate features on it.
	serverVersion = "10.11.6"
	// productName must match exactly, the Jellyfin iOS client refuses other servers.
	productName = "Jellyfin Server"
	defaultPort = 8096
)

// /health
func (j *Jellyfin) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("cache-control", "no-cache, no-store")
	_, _ = w.Write([]byte("Healthy"))
}

// /System/Ping
func (j *Jellyfin) systemPingHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(productName, w)
}

// /GetUtcTime
func (j *Jellyfin) getUtcTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	serveJSON(JFGetUtcTimeResponse{
		RequestReceptionTime:     now,
		ResponseTransmissionTime: now,
	}, w)
}

// /Plugins
func (j *Jellyfin) pluginsHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON([]string{}, w)
}

// /System/Endpoint
//
// Local network detection is not supported, clients always use the address they connected to.
func (j *Jellyfin) systemEndpointHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(JFSystemEndpointResponse{}, w)
}

// /System/Info/Public
func (j *Jellyfin) systemInfoPublicHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(j.publicInfo(r), w)
}

// /System/Info
func (j *Jellyfin) systemInfoHandler(w http.ResponseWriter, r *http.Request) {
	public := j.publicInfo(r)
	serveJSON(JFSystemInfoResponse{
		Id:                         public.Id,
		ServerName:                 public.ServerName,
		Version:                    public.Version,
		LocalAddress:               public.LocalAddress,
		OperatingSystem:            public.OperatingSystem,
		OperatingSystemDisplayName: public.OperatingSystem,
		SystemArchitecture:         runtime.GOARCH,
		CompletedInstallations:     []string{},
		EncoderLocation:            "System",
		WebSocketPortNumber:        requestPort(r),
	}, w)
}

func (j *Jellyfin) publicInfo(r *http.Request) JFSystemInfoPublicResponse {
	return JFSystemInfoPublicResponse{
		Id:                     j.serverID,
		ServerName:             j.name(),
		ProductName:            productName,
		Version:                serverVersion,
		LocalAddress:           localAddress(r),
		OperatingSystem:        runtime.GOOS,
		StartupWizardCompleted: true,
	}
}

// localAddress is the address the client reached us on. The scheme of a
// trusted TLS terminating proxy has already been copied into the request URL.
func localAddress(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.URL.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func requestPort(r *http.Request) int {
	if _, port, err := net.SplitHostPort(r.Host); err == nil {
		if p, err := strconv.Atoi(port); err == nil {
			return p
		}
	}
	return defaultPort
}

// /Branding/Configuration
func (j *Jellyfin) brandingConfigurationHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(JFBrandingConfigurationResponse{}, w)
}

// /Branding/Css
// /Branding/Css.css
func (j *Jellyfin) brandingCssHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.WriteHeader(http.StatusOK)
}

// Localization is fixed to US English.
var (
	countries = []JFCountry{{
		DisplayName:              "United States",
		Name:                     "US",
		ThreeLetterISORegionName: "USA",
		TwoLetterISORegionName:   "US",
	}}
	cultures = []JFLanguage{{
		DisplayName:                 "English",
		Name:                        "English",
		ThreeLetterISOLanguageName:  "eng",
		ThreeLetterISOLanguageNames: []string{"eng"},
		TwoLetterISOLanguageName:    "en",
	}}
	localizationOptions = []JFLocalizationOptions{{Name: "English", Value: "en-US"}}
	parentalRatings     = []JFLocalizationParentalRatings{{Name: "Unrated", Value: 0}}
)

// /Localization/Countries
func (j *Jellyfin) localizationCountriesHandler(w http.ResponseWriter, r *http.Request) {
	j.cache1h(w)
	serveJSON(countries, w)
}

// /Localization/Cultures
func (j *Jellyfin) localizationCulturesHandler(w http.ResponseWriter, r *http.Request) {
	j.cache1h(w)
	serveJSON(cultures, w)
}

// /Localization/Options
func (j *Jellyfin) localizationOptionsHandler(w http.ResponseWriter, r *http.Request) {
	j.cache1h(w)
	serveJSON(localizationOptions, w)
}

// /Localization/ParentalRatings
func (j *Jellyfin) localizationParentalRatingsHandler(w http.ResponseWriter, r *http.Request) {
	j.cache1h(w)
	serveJSON(parentalRatings, w)
}

// /DisplayPreferences/usersettings?userId=2b1ec0a52b09456c9823a367d84ac9e5&client=emby
//
// Display preferences are fixed, changes posted by clients are accepted and dropped.
func (j *Jellyfin) displayPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	client := r.URL.Query().Get("client")
	if client == "" {
		client = "emby"
	}
	serveJSON(DisplayPreferencesResponse{
		ID:                 mux.Vars(r)["id"],
		Client:             client,
		SortBy:             "SortName",
		SortOrder:          "Ascending",
		ScrollDirection:    "Horizontal",
		ShowBackdrop:       true,
		PrimaryImageHeight: 250,
		PrimaryImageWidth:  250,
		CustomPrefs: DisplayPreferencesCustomPrefs{
			ChromecastVersion:          "stable",
			SkipForwardLength:          "30000",
			SkipBackLength:             "10000",
			EnableNextVideoInfoOverlay: "False",
			Tvhome:                     "null",
			DashboardTheme:             "null",
		},
	}, w)
}
