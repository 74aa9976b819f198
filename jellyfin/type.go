package jellyfin

import (
	"time"
)

// API definitions: https://swagger.emby.media/ & https://api.jellyfin.org/
// Docs: https://github.com/mediabrowser/emby/wiki

type JFSystemInfoPublicResponse struct {
	LocalAddress           string `json:"LocalAddress"`
	ServerName             string `json:"ServerName"`
	Version                string `json:"Version"`
	ProductName            string `json:"ProductName"`
	OperatingSystem        string `json:"OperatingSystem"`
	Id                     string `json:"Id"`
	StartupWizardCompleted bool   `json:"StartupWizardCompleted"`
}

type JFSystemInfoResponse struct {
	OperatingSystemDisplayName string   `json:"OperatingSystemDisplayName"`
	HasPendingRestart          bool     `json:"HasPendingRestart"`
	IsShuttingDown             bool     `json:"IsShuttingDown"`
	SupportsLibraryMonitor     bool     `json:"SupportsLibraryMonitor"`
	WebSocketPortNumber        int      `json:"WebSocketPortNumber"`
	CompletedInstallations     []string `json:"CompletedInstallations"`
	CanSelfRestart             bool     `json:"CanSelfRestart"`
	CanLaunchWebBrowser        bool     `json:"CanLaunchWebBrowser"`
	HasUpdateAvailable         bool     `json:"HasUpdateAvailable"`
	EncoderLocation            string   `json:"EncoderLocation"`
	SystemArchitecture         string   `json:"SystemArchitecture"`
	LocalAddress               string   `json:"LocalAddress"`
	ServerName                 string   `json:"ServerName"`
	Version                    string   `json:"Version"`
	OperatingSystem            string   `json:"OperatingSystem"`
	Id                         string   `json:"Id"`
}

type JFSystemEndpointResponse struct {
	IsLocal     bool `json:"IsLocal"`
	IsInNetwork bool `json:"IsInNetwork"`
}

type JFGetUtcTimeResponse struct {
	RequestReceptionTime     time.Time `json:"RequestReceptionTime"`
	ResponseTransmissionTime time.Time `json:"ResponseTransmissionTime"`
}

type JFUser struct {
	Name                      string              `json:"Name"`
	ServerId                  string              `json:"ServerId"`
	Id                        string              `json:"Id"`
	HasPassword               bool                `json:"HasPassword"`
	HasConfiguredPassword     bool                `json:"HasConfiguredPassword"`
	HasConfiguredEasyPassword bool                `json:"HasConfiguredEasyPassword"`
	EnableAutoLogin           bool                `json:"EnableAutoLogin"`
	LastLoginDate             time.Time           `json:"LastLoginDate"`
	LastActivityDate          time.Time           `json:"LastActivityDate"`
	Configuration             JFUserConfiguration `json:"Configuration"`
	Policy                    JFUserPolicy        `json:"Policy"`
}

type JFUserConfiguration struct {
	GroupedFolders             []string `json:"GroupedFolders"`
	SubtitleMode               string   `json:"SubtitleMode"`
	OrderedViews               []string `json:"OrderedViews"`
	MyMediaExcludes            []string `json:"MyMediaExcludes"`
	LatestItemsExcludes        []string `json:"LatestItemsExcludes"`
	SubtitleLanguagePreference string   `json:"SubtitleLanguagePreference"`
	PlayDefaultAudioTrack      bool     `json:"PlayDefaultAudioTrack"`
	DisplayMissingEpisodes     bool     `json:"DisplayMissingEpisodes"`
	HidePlayedInLatest         bool     `json:"HidePlayedInLatest"`
	RememberAudioSelections    bool     `json:"RememberAudioSelections"`
	RememberSubtitleSelections bool     `json:"RememberSubtitleSelections"`
	EnableNextEpisodeAutoPlay  bool     `json:"EnableNextEpisodeAutoPlay"`
}

type JFUserPolicy struct {
	IsAdministrator                bool     `json:"IsAdministrator"`
	IsHidden                       bool     `json:"IsHidden"`
	IsDisabled                     bool     `json:"IsDisabled"`
	BlockedTags                    []string `json:"BlockedTags"`
	AllowedTags                    []string `json:"AllowedTags"`
	EnableRemoteAccess             bool     `json:"EnableRemoteAccess"`
	EnableMediaPlayback            bool     `json:"EnableMediaPlayback"`
	EnableAudioPlaybackTranscoding bool     `json:"EnableAudioPlaybackTranscoding"`
	EnableVideoPlaybackTranscoding bool     `json:"EnableVideoPlaybackTranscoding"`
	EnablePlaybackRemuxing         bool     `json:"EnablePlaybackRemuxing"`
	EnableContentDeletion          bool     `json:"EnableContentDeletion"`
	EnableContentDownloading       bool     `json:"EnableContentDownloading"`
	EnableAllDevices               bool     `json:"EnableAllDevices"`
	EnableAllChannels              bool     `json:"EnableAllChannels"`
	EnableAllFolders               bool     `json:"EnableAllFolders"`
	EnabledFolders                 []string `json:"EnabledFolders"`
	AuthenticationProviderID       string   `json:"AuthenticationProviderId"`
	PasswordResetProviderID        string   `json:"PasswordResetProviderId"`
	SyncPlayAccess                 string   `json:"SyncPlayAccess"`
}

type JFAuthenticateUserByNameRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

type JFAuthenticateByNameResponse struct {
	User        JFUser         `json:"User"`
	SessionInfo *JFSessionInfo `json:"SessionInfo"`
	AccessToken string         `json:"AccessToken"`
	ServerId    string         `json:"ServerId"`
}

type DisplayPreferencesCustomPrefs struct {
	ChromecastVersion          string `json:"chromecastVersion"`
	SkipForwardLength          string `json:"skipForwardLength"`
	SkipBackLength             string `json:"skipBackLength"`
	EnableNextVideoInfoOverlay string `json:"enableNextVideoInfoOverlay"`
	Tvhome                     string `json:"tvhome"`
	DashboardTheme             string `json:"dashboardTheme"`
}

type DisplayPreferencesResponse struct {
	ID                 string                        `json:"Id"`
	SortBy             string                        `json:"SortBy"`
	RememberIndexing   bool                          `json:"RememberIndexing"`
	PrimaryImageHeight int                           `json:"PrimaryImageHeight"`
	PrimaryImageWidth  int                           `json:"PrimaryImageWidth"`
	CustomPrefs        DisplayPreferencesCustomPrefs `json:"CustomPrefs"`
	ScrollDirection    string                        `json:"ScrollDirection"`
	ShowBackdrop       bool                          `json:"ShowBackdrop"`
	RememberSorting    bool                          `json:"RememberSorting"`
	SortOrder          string                        `json:"SortOrder"`
	ShowSidebar        bool                          `json:"ShowSidebar"`
	Client             string                        `json:"Client"`
}

type JFItem struct {
	ID                       string           `json:"Id"`
	ParentID                 string           `json:"ParentId,omitempty"`
	ServerID                 string           `json:"ServerId"`
	Type                     string           `json:"Type,omitempty"`
	Name                     string           `json:"Name"`
	SortName                 string           `json:"SortName,omitempty"`
	OriginalTitle            string           `json:"OriginalTitle,omitempty"`
	Etag                     string           `json:"Etag"`
	DateCreated              *time.Time       `json:"DateCreated,omitempty"`
	CanDelete                bool             `json:"CanDelete"`
	CanDownload              bool             `json:"CanDownload"`
	Container                string           `json:"Container,omitempty"`
	PremiereDate             *time.Time       `json:"PremiereDate,omitempty"`
	MediaSources             []JFMediaSources `json:"MediaSources,omitempty"`
	MediaType                string           `json:"MediaType,omitempty"`
	Path                     string           `json:"Path,omitempty"`
	EnableMediaSourceDisplay bool             `json:"EnableMediaSourceDisplay"`
	ChildCount               int              `json:"ChildCount,omitempty"`
	RecursiveItemCount       int              `json:"RecursiveItemCount,omitempty"`
	CollectionType           string           `json:"CollectionType,omitempty"`
	MediaStreams             []JFMediaStreams `json:"MediaStreams,omitempty"`
	Overview                 string           `json:"Overview,omitempty"`
	Taglines                 []string         `json:"Taglines,omitempty"`
	Genres                   []string         `json:"Genres"`
	CommunityRating          float32          `json:"CommunityRating,omitempty"`
	RunTimeTicks             int64            `json:"RunTimeTicks,omitempty"`
	PlayAccess               string           `json:"PlayAccess,omitempty"`
	ProductionYear           int              `json:"ProductionYear,omitempty"`
	LocationType             string           `json:"LocationType,omitempty"`
	UserData                 *JFUserData      `json:"UserData,omitempty"`
	ImageTags                *JFImageTags     `json:"ImageTags,omitempty"`
	BackdropImageTags        []string         `json:"BackdropImageTags"`
	Width                    int              `json:"Width,omitempty"`
	Height                   int              `json:"Height,omitempty"`
	IsFolder                 bool             `json:"IsFolder"`
	IsHD                     bool             `json:"IsHD"`
	Is4K                     bool             `json:"Is4K"`
	LockData                 bool             `json:"LockData"`
	HasSubtitles             bool             `json:"HasSubtitles,omitempty"`
	People                   []JFPeople       `json:"People"`
	Studios                  []JFStudios      `json:"Studios"`
	GenreItems               []JFGenreItem    `json:"GenreItems"`
	ProviderIds              JFProviderIds    `json:"ProviderIds"`
	ExternalUrls             []JFExternalUrls `json:"ExternalUrls"`
	Tags                     []string         `json:"Tags"`
	LockedFields             []string         `json:"LockedFields"`
	DisplayPreferencesID     string           `json:"DisplayPreferencesId,omitempty"`
	PrimaryImageAspectRatio  float64          `json:"PrimaryImageAspectRatio,omitempty"`
	VideoType                string           `json:"VideoType,omitempty"`
	// Role is set for performers listed as people search results.
	Role string `json:"Role,omitempty"`
}

type JFExternalUrls struct {
	Name string `json:"Name"`
	URL  string `json:"Url"`
}

type JFMediaStreams struct {
	Title                  string  `json:"Title,omitempty"`
	Codec                  string  `json:"Codec"`
	CodecTag               string  `json:"CodecTag,omitempty"`
	Language               string  `json:"Language,omitempty"`
	TimeBase               string  `json:"TimeBase,omitempty"`
	VideoRange             string  `json:"VideoRange,omitempty"`
	VideoRangeType         string  `json:"VideoRangeType,omitempty"`
	DisplayTitle           string  `json:"DisplayTitle,omitempty"`
	IsInterlaced           bool    `json:"IsInterlaced"`
	BitRate                int64   `json:"BitRate,omitempty"`
	IsDefault              bool    `json:"IsDefault"`
	IsForced               bool    `json:"IsForced"`
	IsHearingImpaired      bool    `json:"IsHearingImpaired"`
	Height                 int     `json:"Height,omitempty"`
	Width                  int     `json:"Width,omitempty"`
	AverageFrameRate       float64 `json:"AverageFrameRate,omitempty"`
	RealFrameRate          float64 `json:"RealFrameRate,omitempty"`
	Type                   string  `json:"Type"`
	AspectRatio            string  `json:"AspectRatio,omitempty"`
	Index                  int     `json:"Index"`
	IsExternal             bool    `json:"IsExternal"`
	IsTextSubtitleStream   bool    `json:"IsTextSubtitleStream"`
	SupportsExternalStream bool    `json:"SupportsExternalStream"`
	DeliveryMethod         string  `json:"DeliveryMethod,omitempty"`
	DeliveryUrl            string  `json:"DeliveryUrl,omitempty"`
	Path                   string  `json:"Path,omitempty"`
	Level                  int     `json:"Level"`
	ChannelLayout          string  `json:"ChannelLayout,omitempty"`
	Channels               int     `json:"Channels,omitempty"`
	LocalizedDefault       string  `json:"LocalizedDefault,omitempty"`
	LocalizedExternal      string  `json:"LocalizedExternal,omitempty"`
}

type JFRequiredHTTPHeaders struct {
}

type JFMediaSources struct {
	Protocol                   string                `json:"Protocol"`
	ID                         string                `json:"Id"`
	Path                       string                `json:"Path"`
	Type                       string                `json:"Type"`
	Container                  string                `json:"Container"`
	Size                       int64                 `json:"Size"`
	Name                       string                `json:"Name"`
	IsRemote                   bool                  `json:"IsRemote"`
	ETag                       string                `json:"ETag"`
	RunTimeTicks               int64                 `json:"RunTimeTicks,omitempty"`
	ReadAtNativeFramerate      bool                  `json:"ReadAtNativeFramerate"`
	IgnoreDts                  bool                  `json:"IgnoreDts"`
	IgnoreIndex                bool                  `json:"IgnoreIndex"`
	GenPtsInput                bool                  `json:"GenPtsInput"`
	SupportsTranscoding        bool                  `json:"SupportsTranscoding"`
	SupportsDirectStream       bool                  `json:"SupportsDirectStream"`
	SupportsDirectPlay         bool                  `json:"SupportsDirectPlay"`
	IsInfiniteStream           bool                  `json:"IsInfiniteStream"`
	RequiresOpening            bool                  `json:"RequiresOpening"`
	RequiresClosing            bool                  `json:"RequiresClosing"`
	RequiresLooping            bool                  `json:"RequiresLooping"`
	SupportsProbing            bool                  `json:"SupportsProbing"`
	VideoType                  string                `json:"VideoType"`
	MediaStreams               []JFMediaStreams      `json:"MediaStreams"`
	MediaAttachments           []string              `json:"MediaAttachments"`
	Formats                    []string              `json:"Formats"`
	Bitrate                    int64                 `json:"Bitrate,omitempty"`
	RequiredHTTPHeaders        JFRequiredHTTPHeaders `json:"RequiredHttpHeaders"`
	DefaultAudioStreamIndex    int                   `json:"DefaultAudioStreamIndex"`
	DefaultSubtitleStreamIndex *int                  `json:"DefaultSubtitleStreamIndex,omitempty"`
}

type JFProviderIds struct {
	Stash string `json:"Stash,omitempty"`
}

type JFPeople struct {
	Name            string `json:"Name"`
	ID              string `json:"Id"`
	Role            string `json:"Role,omitempty"`
	Type            string `json:"Type"`
	PrimaryImageTag string `json:"PrimaryImageTag,omitempty"`
}

type JFStudios struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

type JFGenreItem struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

type JFUserData struct {
	PlaybackPositionTicks int64      `json:"PlaybackPositionTicks"`
	PlayedPercentage      float64    `json:"PlayedPercentage,omitempty"`
	PlayCount             int        `json:"PlayCount"`
	IsFavorite            bool       `json:"IsFavorite"`
	LastPlayedDate        *time.Time `json:"LastPlayedDate,omitempty"`
	Played                bool       `json:"Played"`
	Key                   string     `json:"Key"`
	ItemID                string     `json:"ItemId"`
	UnplayedItemCount     int        `json:"UnplayedItemCount,omitempty"`
}

type JFImageTags struct {
	Primary  string `json:"Primary,omitempty"`
	Backdrop string `json:"Backdrop,omitempty"`
	Thumb    string `json:"Thumb,omitempty"`
}

type UserItemsResponse struct {
	Items            []JFItem `json:"Items"`
	StartIndex       int      `json:"StartIndex"`
	TotalRecordCount int      `json:"TotalRecordCount"`
}

type SearchHint struct {
	ItemId                  string  `json:"ItemId"`
	Id                      string  `json:"Id"`
	Name                    string  `json:"Name"`
	Type                    string  `json:"Type"`
	MediaType               string  `json:"MediaType,omitempty"`
	IsFolder                bool    `json:"IsFolder"`
	RunTimeTicks            int64   `json:"RunTimeTicks,omitempty"`
	ProductionYear          int     `json:"ProductionYear,omitempty"`
	PrimaryImageTag         string  `json:"PrimaryImageTag,omitempty"`
	PrimaryImageAspectRatio float64 `json:"PrimaryImageAspectRatio,omitempty"`
}

type SearchHintsResponse struct {
	SearchHints      []SearchHint `json:"SearchHints"`
	TotalRecordCount int          `json:"TotalRecordCount"`
}

type JFPlaybackInfoResponse struct {
	MediaSources  []JFMediaSources `json:"MediaSources"`
	PlaySessionID string           `json:"PlaySessionId"`
}

type JFMediaLibrary struct {
	Name           string   `json:"Name"`
	Locations      []string `json:"Locations"`
	CollectionType string   `json:"CollectionType,omitempty"`
	ItemId         string   `json:"ItemId,omitempty"`
}

// JFPlayState is the body of /Sessions/Playing* notifications.
type JFPlayState struct {
	CanSeek       bool   `json:"CanSeek"`
	PositionTicks int64  `json:"PositionTicks"`
	PlaySessionID string `json:"PlaySessionId"`
	MediaSourceID string `json:"MediaSourceId"`
	ItemId        string `json:"ItemId"`
	PlayMethod    string `json:"PlayMethod"`
	IsPaused      bool   `json:"IsPaused"`
	EventName     string `json:"EventName"`
}

// Localization
type JFCountry struct {
	DisplayName              string `json:"DisplayName"`
	Name                     string `json:"Name"`
	ThreeLetterISORegionName string `json:"ThreeLetterISORegionName"`
	TwoLetterISORegionName   string `json:"TwoLetterISORegionName"`
}

type JFLanguage struct {
	DisplayName                 string   `json:"DisplayName"`
	Name                        string   `json:"Name"`
	ThreeLetterISOLanguageName  string   `json:"ThreeLetterISOLanguageName"`
	ThreeLetterISOLanguageNames []string `json:"ThreeLetterISOLanguageNames"`
	TwoLetterISOLanguageName    string   `json:"TwoLetterISOLanguageName"`
}

type JFLocalizationOptions struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type JFLocalizationParentalRatings struct {
	Name  string `json:"Name"`
	Value int    `json:"Value"`
}

type JFItemCountResponse struct {
	MovieCount      int `json:"MovieCount"`
	SeriesCount     int `json:"SeriesCount"`
	EpisodeCount    int `json:"EpisodeCount"`
	ArtistCount     int `json:"ArtistCount"`
	ProgramCount    int `json:"ProgramCount"`
	TrailerCount    int `json:"TrailerCount"`
	SongCount       int `json:"SongCount"`
	AlbumCount      int `json:"AlbumCount"`
	MusicVideoCount int `json:"MusicVideoCount"`
	BoxSetCount     int `json:"BoxSetCount"`
	BookCount       int `json:"BookCount"`
	ItemCount       int `json:"ItemCount"`
}

type JFItemFilterResponse struct {
	Genres          []string `json:"Genres"`
	Tags            []string `json:"Tags"`
	OfficialRatings []string `json:"OfficialRatings"`
	Years           []int    `json:"Years"`
}

type JFBrandingConfigurationResponse struct {
	LoginDisclaimer     string `json:"LoginDisclaimer,omitempty"`
	CustomCss           string `json:"CustomCss,omitempty"`
	SplashscreenEnabled bool   `json:"SplashscreenEnabled"`
}

type JFSessionInfo struct {
	PlayState                JFSessionResponsePlayState    `json:"PlayState"`
	AdditionalUsers          []string                      `json:"AdditionalUsers"`
	Capabilities             JFSessionResponseCapabilities `json:"Capabilities"`
	RemoteEndPoint           string                        `json:"RemoteEndPoint"`
	PlayableMediaTypes       []string                      `json:"PlayableMediaTypes"`
	ID                       string                        `json:"Id"`
	UserID                   string                        `json:"UserId"`
	UserName                 string                        `json:"UserName"`
	Client                   string                        `json:"Client"`
	LastActivityDate         time.Time                     `json:"LastActivityDate"`
	LastPlaybackCheckIn      time.Time                     `json:"LastPlaybackCheckIn"`
	DeviceName               string                        `json:"DeviceName"`
	DeviceID                 string                        `json:"DeviceId"`
	ApplicationVersion       string                        `json:"ApplicationVersion"`
	IsActive                 bool                          `json:"IsActive"`
	SupportsMediaControl     bool                          `json:"SupportsMediaControl"`
	SupportsRemoteControl    bool                          `json:"SupportsRemoteControl"`
	NowPlayingItem           *JFItem                       `json:"NowPlayingItem,omitempty"`
	NowPlayingQueue          []string                      `json:"NowPlayingQueue"`
	NowPlayingQueueFullItems []string                      `json:"NowPlayingQueueFullItems"`
	HasCustomDeviceName      bool                          `json:"HasCustomDeviceName"`
	ServerID                 string                        `json:"ServerId"`
	SupportedCommands        []string                      `json:"SupportedCommands"`
}

type JFSessionResponsePlayState struct {
	PositionTicks int64  `json:"PositionTicks,omitempty"`
	CanSeek       bool   `json:"CanSeek"`
	IsPaused      bool   `json:"IsPaused"`
	IsMuted       bool   `json:"IsMuted"`
	PlayMethod    string `json:"PlayMethod,omitempty"`
	RepeatMode    string `json:"RepeatMode"`
	PlaybackOrder string `json:"PlaybackOrder"`
}

type JFSessionResponseCapabilities struct {
	PlayableMediaTypes           []string `json:"PlayableMediaTypes"`
	SupportedCommands            []string `json:"SupportedCommands"`
	SupportsMediaControl         bool     `json:"SupportsMediaControl"`
	SupportsPersistentIdentifier bool     `json:"SupportsPersistentIdentifier"`
}
