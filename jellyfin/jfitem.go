package jellyfin

import (
	"strconv"
	"strings"
	"time"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/idhash"
)

const (
	// ticksPerSecond is the Jellyfin time unit, 100ns.
	ticksPerSecond = 10_000_000

	itemTypeMovie            = "Movie"
	itemTypeFolder           = "Folder"
	itemTypeCollectionFolder = "CollectionFolder"
	itemTypeUserView         = "UserView"
	collectionTypeMovies     = "movies"
	collectionTypeBoxsets    = "boxsets"
)

// makeJFItem formats a listed scene or folder.
func (j *Jellyfin) makeJFItem(e catalog.Entry, parentID string) JFItem {
	if e.Media != nil {
		return j.makeJFItemScene(*e.Media, parentID)
	}
	if e.Folder != nil {
		return j.makeJFItemFolder(*e.Folder, parentID)
	}
	return JFItem{}
}

func (j *Jellyfin) makeJFItems(entries []catalog.Entry, parentID string) []JFItem {
	items := make([]JFItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, j.makeJFItem(e, parentID))
	}
	return items
}

// makeJFItemScene formats a scene as a playable movie.
func (j *Jellyfin) makeJFItemScene(m catalog.MediaItem, parentID string) JFItem {
	id := makeJFSceneID(m.ID)
	response := JFItem{
		ID:                       id,
		ParentID:                 parentID,
		ServerID:                 j.serverID,
		Type:                     itemTypeMovie,
		Name:                     m.DisplayTitle(),
		OriginalTitle:            m.Title,
		Etag:                     idhash.Hash(id + m.Title + strconv.FormatInt(m.Size, 10)),
		Container:                m.Container,
		MediaType:                "Video",
		VideoType:                "VideoFile",
		LocationType:             "FileSystem",
		PlayAccess:               "Full",
		Path:                     m.Path,
		Overview:                 m.Details,
		RunTimeTicks:             durationTicks(m.Duration),
		Width:                    m.Width,
		Height:                   m.Height,
		IsHD:                     m.Height >= 720,
		Is4K:                     m.Width >= 3800,
		HasSubtitles:             len(m.Captions) > 0,
		CanDownload:              true,
		EnableMediaSourceDisplay: true,
		Genres:                   nonNil(m.Tags),
		Tags:                     nonNil(m.Tags),
		GenreItems:               []JFGenreItem{},
		Studios:                  []JFStudios{},
		People:                   makeJFPeople(m.Performers),
		ExternalUrls:             []JFExternalUrls{},
		LockedFields:             []string{},
		BackdropImageTags:        []string{},
		Taglines:                 []string{},
		ProviderIds:              JFProviderIds{Stash: m.ID},
		UserData:                 makeJFUserDataScene(id, m),
	}
	response.SortName = strings.ToLower(response.Name)
	if m.Director != "" {
		response.People = append(response.People, JFPeople{Name: m.Director, ID: "director-" + idhash.Hash(m.Director), Type: "Director"})
	}
	if m.Studio != "" {
		response.Studios = append(response.Studios, JFStudios{Name: m.Studio, ID: catalog.Entity(catalog.Studios, m.StudioID).String()})
	}
	if m.Rating100 != nil {
		response.CommunityRating = float32(*m.Rating100) / 10
	}
	if premiere, ok := parseDate(m.Date); ok {
		response.PremiereDate = &premiere
		response.ProductionYear = premiere.Year()
	}
	if !m.CreatedAt.IsZero() {
		created := m.CreatedAt.UTC()
		response.DateCreated = &created
	}
	if m.ScreenshotPath != "" {
		tag := idhash.Hash(m.ScreenshotPath)
		response.ImageTags = &JFImageTags{Primary: tag, Thumb: tag, Backdrop: tag}
		response.BackdropImageTags = []string{tag}
		response.PrimaryImageAspectRatio = 16.0 / 9.0
	}

	response.MediaSources = []JFMediaSources{makeMediaSource(m)}
	response.MediaStreams = response.MediaSources[0].MediaStreams
	return response
}

// makeJFItemFolder formats a browsable folder.
func (j *Jellyfin) makeJFItemFolder(f catalog.FolderSummary, parentID string) JFItem {
	id := f.ID()
	response := JFItem{
		ID:                   id,
		ParentID:             parentID,
		ServerID:             j.serverID,
		Type:                 itemTypeFolder,
		Name:                 f.Name,
		SortName:             strings.ToLower(f.Name),
		Etag:                 idhash.Hash(id + f.Name),
		Overview:             f.Overview,
		IsFolder:             true,
		ChildCount:           f.ChildCount,
		RecursiveItemCount:   f.ChildCount,
		LocationType:         "FileSystem",
		PlayAccess:           "Full",
		DisplayPreferencesID: idhash.ServerID(id),
		Genres:               []string{},
		Tags:                 []string{},
		GenreItems:           []JFGenreItem{},
		Studios:              []JFStudios{},
		People:               []JFPeople{},
		ExternalUrls:         []JFExternalUrls{},
		LockedFields:         []string{},
		BackdropImageTags:    []string{},
		Taglines:             []string{},
		UserData: &JFUserData{
			IsFavorite:        f.Favorite,
			Key:               id,
			ItemID:            id,
			UnplayedItemCount: f.ChildCount,
		},
	}
	if f.Node.Kind == catalog.NodeEntity {
		response.ProviderIds = JFProviderIds{Stash: f.Node.ID}
	}

	switch f.Kind {
	case catalog.FolderCollection, catalog.FolderTagGroup:
		response.Type = itemTypeCollectionFolder
		response.CollectionType = collectionTypeMovies
		if f.Node.Kind == catalog.NodeCollection && f.Node.Collection != catalog.Scenes {
			response.CollectionType = collectionTypeBoxsets
		}
	case catalog.FolderFilterList, catalog.FolderTagList:
		response.Type = itemTypeUserView
	}

	switch {
	case f.ImagePath != "":
		tag := idhash.Hash(f.ImagePath)
		response.ImageTags = &JFImageTags{Primary: tag}
		response.PrimaryImageAspectRatio = folderAspect(f)
	case hasGeneratedIcon(f.Node):
		response.ImageTags = &JFImageTags{Primary: idhash.Hash(id + f.Name)}
		response.PrimaryImageAspectRatio = 1
	}

	if premiere, ok := parseDate(f.Date); ok {
		response.PremiereDate = &premiere
		response.ProductionYear = premiere.Year()
	}
	if !f.CreatedAt.IsZero() {
		created := f.CreatedAt.UTC()
		response.DateCreated = &created
	}
	return response
}

// hasGeneratedIcon reports whether a folder without a backend image gets an icon.
func hasGeneratedIcon(n catalog.Node) bool {
	return n.Kind != catalog.NodeEntity && n.Kind != catalog.NodeScene
}

func folderAspect(f catalog.FolderSummary) float64 {
	if f.Kind == catalog.FolderPerformer {
		return 2.0 / 3.0
	}
	return 16.0 / 9.0
}

// durationTicks converts seconds to ticks, zero when unknown.
func durationTicks(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(seconds * ticksPerSecond)
}

func makeJFSceneID(id string) string {
	return catalog.Scene(id).String()
}

func makeJFPeople(performers []catalog.Person) []JFPeople {
	people := make([]JFPeople, 0, len(performers))
	for _, p := range performers {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		person := JFPeople{
			Name: p.Name,
			ID:   catalog.Entity(catalog.Performers, p.ID).String(),
			Type: "Actor",
		}
		if p.HasImage {
			person.PrimaryImageTag = idhash.Hash(person.ID)
		}
		people = append(people, person)
	}
	return people
}

func makeJFUserDataScene(id string, m catalog.MediaItem) *JFUserData {
	u := &JFUserData{
		PlayCount:             m.PlayCount,
		Played:                m.PlayCount > 0,
		PlaybackPositionTicks: durationTicks(m.ResumeSeconds),
		Key:                   id,
		ItemID:                id,
	}
	if m.Duration > 0 && m.ResumeSeconds > 0 {
		u.PlayedPercentage = 100 * m.ResumeSeconds / m.Duration
	}
	return u
}

// parseDate parses a backend YYYY-MM-DD date.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
