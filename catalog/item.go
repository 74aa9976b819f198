package catalog

import (
	"path"
	"strings"
	"time"

	"github.com/erikbos/stashfin/stash"
)

// MediaItem is a read-only projection of one backend scene.
type MediaItem struct {
	// ID is the numeric backend id.
	ID        string
	Title     string
	Code      string
	Path      string
	Date      string
	Details   string
	Director  string
	Duration  float64
	Size      int64
	Width     int
	Height    int
	FrameRate float64
	BitRate   int64
	// Container is the file format as reported by the backend, e.g. mp4.
	Container  string
	VideoCodec string
	AudioCodec string
	StudioID   string
	Studio     string
	Tags       []string
	Performers []Person
	Captions   []Caption
	Rating100  *int
	PlayCount  int
	// ResumeSeconds is the backend resume point.
	ResumeSeconds float64
	CreatedAt     time.Time
	// ScreenshotPath is the backend screenshot url, empty if there is none.
	ScreenshotPath string
}

// DisplayTitle picks the first non-empty of title, studio code and file
// name, falling back to "Item <id>".
func (m MediaItem) DisplayTitle() string {
	if t := strings.TrimSpace(m.Title); t != "" {
		return t
	}
	if c := strings.TrimSpace(m.Code); c != "" {
		return c
	}
	if m.Path != "" {
		base := path.Base(strings.ReplaceAll(m.Path, "\\", "/"))
		if stem := strings.TrimSuffix(base, path.Ext(base)); stem != "" && stem != "." && stem != "/" {
			return stem
		}
	}
	return "Item " + m.ID
}

// Person is a performer credited on a scene.
type Person struct {
	ID       string
	Name     string
	HasImage bool
}

// Caption describes one subtitle file of a scene.
type Caption struct {
	Language string
	Format   string
}

// FolderKind tells the formatter what kind of folder it is rendering.
type FolderKind int

const (
	FolderCollection FolderKind = iota
	FolderTagGroup
	FolderFilterList
	FolderFilter
	FolderStudio
	FolderPerformer
	FolderGroup
	FolderTag
	FolderTagList
)

// FolderSummary is a browsable folder.
type FolderSummary struct {
	Node       Node
	Kind       FolderKind
	Name       string
	Overview   string
	ChildCount int
	// ImagePath is the backend image url, empty for generated icons.
	ImagePath string
	Favorite  bool
	Date      string
	CreatedAt time.Time
}

// ID returns the client visible identifier.
func (f FolderSummary) ID() string {
	return f.Node.String()
}

// Entry is one listed child: a scene or a folder.
type Entry struct {
	Media  *MediaItem
	Folder *FolderSummary
}

// Listing is one page of children and the total number of children.
type Listing struct {
	Entries []Entry
	Total   int
}

func mediaEntry(m MediaItem) Entry { return Entry{Media: &m} }
func folderEntry(f FolderSummary) Entry { return Entry{Folder: &f} }

func sceneToMedia(s stash.Scene) MediaItem {
	m := MediaItem{
		ID:            s.ID,
		Title:         s.Title,
		Code:          s.Code,
		Date:          s.Date,
		Details:       s.Details,
		Director:      s.Director,
		Rating100:     s.Rating100,
		PlayCount:     s.PlayCount,
		ResumeSeconds: s.ResumeTime,
		CreatedAt:     parseTime(s.CreatedAt),

		ScreenshotPath: imageIfPresent(s.Paths.Screenshot),
	}
	if len(s.Files) > 0 {
		f := s.Files[0]
		m.Path = f.Path
		m.Duration = f.Duration
		m.Size = int64(f.Size)
		m.Width = f.Width
		m.Height = f.Height
		m.FrameRate = f.FrameRate
		m.BitRate = int64(f.BitRate)
		m.Container = f.Format
		m.VideoCodec = f.VideoCodec
		m.AudioCodec = f.AudioCodec
	}
	if s.Studio != nil {
		m.StudioID = s.Studio.ID
		m.Studio = s.Studio.Name
	}
	for _, t := range s.Tags {
		if t.Name != "" {
			m.Tags = append(m.Tags, t.Name)
		}
	}
	for _, p := range s.Performers {
		m.Performers = append(m.Performers, Person{
			ID:       p.ID,
			Name:     p.Name,
			HasImage: stash.HasImage(p.ImagePath),
		})
	}
	for _, c := range s.Captions {
		m.Captions = append(m.Captions, Caption{Language: c.LanguageCode, Format: c.CaptionType})
	}
	return m
}

func studioToFolder(s stash.Studio) FolderSummary {
	return FolderSummary{
		Node:       Entity(Studios, s.ID),
		Kind:       FolderStudio,
		Name:       s.Name,
		Overview:   s.Details,
		ChildCount: s.SceneCount,
		ImagePath:  imageIfPresent(s.ImagePath),
		Favorite:   s.Favorite,
		CreatedAt:  parseTime(s.CreatedAt),
	}
}

func performerToFolder(p stash.Performer) FolderSummary {
	name := p.Name
	if p.Disambig != "" {
		name += " (" + p.Disambig + ")"
	}
	return FolderSummary{
		Node:       Entity(Performers, p.ID),
		Kind:       FolderPerformer,
		Name:       name,
		Overview:   p.Details,
		ChildCount: p.SceneCount,
		ImagePath:  imageIfPresent(p.ImagePath),
		Favorite:   p.Favorite,
		Date:       p.Birthdate,
		CreatedAt:  parseTime(p.CreatedAt),
	}
}

func groupToFolder(g stash.Group) FolderSummary {
	return FolderSummary{
		Node:       Entity(Groups, g.ID),
		Kind:       FolderGroup,
		Name:       g.Name,
		Overview:   g.Synopsis,
		ChildCount: g.SceneCount,
		ImagePath:  imageIfPresent(g.FrontImagePath),
		Date:       g.Date,
		CreatedAt:  parseTime(g.CreatedAt),
	}
}

func tagToFolder(t stash.Tag) FolderSummary {
	return FolderSummary{
		Node:       Entity(Tags, t.ID),
		Kind:       FolderTag,
		Name:       t.Name,
		Overview:   t.Description,
		ChildCount: t.SceneCount,
		ImagePath:  imageIfPresent(t.ImagePath),
		Favorite:   t.Favorite,
		CreatedAt:  parseTime(t.CreatedAt),
	}
}

func imageIfPresent(path string) string {
	if stash.HasImage(path) {
		return path
	}
	return ""
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
