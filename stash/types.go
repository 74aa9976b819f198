package stash

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FilterMode is the kind of object a saved filter applies to.
type FilterMode string

const (
	ModeScenes     FilterMode = "SCENES"
	ModeStudios    FilterMode = "STUDIOS"
	ModePerformers FilterMode = "PERFORMERS"
	ModeGroups     FilterMode = "GROUPS"
	ModeTags       FilterMode = "TAGS"
)

// Sort directions.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// FindFilter is the Stash FindFilterType input.
type FindFilter struct {
	Q         string `json:"q,omitempty"`
	Page      int    `json:"page,omitempty"`
	PerPage   int    `json:"per_page,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// Int64 decodes numbers that Stash may send either as JSON number or string.
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*i = Int64(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// malformed upstream value defaults to zero
		*i = 0
		return nil
	}
	*i = Int64(f)
	return nil
}

// Scene is a Stash scene with the fields the gateway reads.
type Scene struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Code       string       `json:"code"`
	Details    string       `json:"details"`
	Director   string       `json:"director"`
	Date       string       `json:"date"`
	Rating100  *int         `json:"rating100"`
	Organized  bool         `json:"organized"`
	PlayCount  int          `json:"play_count"`
	OCounter   int          `json:"o_counter"`
	CreatedAt  string       `json:"created_at"`
	ResumeTime float64      `json:"resume_time"`
	Files      []VideoFile  `json:"files"`
	Paths      ScenePaths   `json:"paths"`
	Studio     *Studio      `json:"studio"`
	Tags       []Tag        `json:"tags"`
	Performers []Performer  `json:"performers"`
	Groups     []SceneGroup `json:"groups"`
	Captions   []Caption    `json:"captions"`
}

// VideoFile is a file backing a scene.
type VideoFile struct {
	Path       string  `json:"path"`
	Basename   string  `json:"basename"`
	Size       Int64   `json:"size"`
	Duration   float64 `json:"duration"`
	VideoCodec string  `json:"video_codec"`
	AudioCodec string  `json:"audio_codec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	BitRate    Int64   `json:"bit_rate"`
	Format     string  `json:"format"`
}

// ScenePaths are backend urls for scene resources.
type ScenePaths struct {
	Screenshot string `json:"screenshot"`
	Stream     string `json:"stream"`
	Caption    string `json:"caption"`
}

// Caption is a subtitle file attached to a scene.
type Caption struct {
	LanguageCode string `json:"language_code"`
	CaptionType  string `json:"caption_type"`
}

type SceneGroup struct {
	Group      Group `json:"group"`
	SceneIndex *int  `json:"scene_index"`
}

type Performer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Disambig   string `json:"disambiguation"`
	Gender     string `json:"gender"`
	Birthdate  string `json:"birthdate"`
	Details    string `json:"details"`
	ImagePath  string `json:"image_path"`
	SceneCount int    `json:"scene_count"`
	Favorite   bool   `json:"favorite"`
	CreatedAt  string `json:"created_at"`
}

type Studio struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Details    string `json:"details"`
	ImagePath  string `json:"image_path"`
	SceneCount int    `json:"scene_count"`
	Favorite   bool   `json:"favorite"`
	CreatedAt  string `json:"created_at"`
}

type Group struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Date           string `json:"date"`
	Synopsis       string `json:"synopsis"`
	FrontImagePath string `json:"front_image_path"`
	SceneCount     int    `json:"scene_count"`
	CreatedAt      string `json:"created_at"`
}

type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
	SceneCount  int    `json:"scene_count"`
	Favorite    bool   `json:"favorite"`
	CreatedAt   string `json:"created_at"`
}

// SavedFilter is a named filter stored in Stash.
type SavedFilter struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Mode         FilterMode      `json:"mode"`
	FindFilter   *FindFilter     `json:"find_filter"`
	ObjectFilter json.RawMessage `json:"object_filter"`
}

// HasImage reports whether an image path points at a real image instead
// of the generated default Stash serves for objects without one.
func HasImage(imagePath string) bool {
	return imagePath != "" && !strings.Contains(imagePath, "default=true")
}
