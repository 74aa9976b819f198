package stash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const sceneFields = `
	id title code details director date rating100 organized play_count o_counter created_at resume_time
	files { path basename size duration video_codec audio_codec width height frame_rate bit_rate format }
	paths { screenshot stream caption }
	studio { id name image_path }
	tags { id name }
	performers { id name disambiguation gender image_path }
	groups { group { id name } scene_index }
	captions { language_code caption_type }`

const (
	studioFields      = `id name details image_path scene_count favorite created_at`
	performerFields   = `id name disambiguation gender birthdate details image_path scene_count favorite created_at`
	groupFields       = `id name date synopsis front_image_path scene_count created_at`
	tagFields         = `id name description image_path scene_count favorite created_at`
	savedFilterFields = `id name mode find_filter { q sort direction } object_filter`
)

// ScenesResult is one page of scenes plus the total match count.
type ScenesResult struct {
	Count  int     `json:"count"`
	Scenes []Scene `json:"scenes"`
}

type StudiosResult struct {
	Count   int      `json:"count"`
	Studios []Studio `json:"studios"`
}

type PerformersResult struct {
	Count      int         `json:"count"`
	Performers []Performer `json:"performers"`
}

type GroupsResult struct {
	Count  int     `json:"count"`
	Groups []Group `json:"groups"`
}

type TagsResult struct {
	Count int   `json:"count"`
	Tags  []Tag `json:"tags"`
}

// query executes a query and decodes field of the data object into out.
func (c *Client) query(ctx context.Context, op, field, query string, vars map[string]any, out any) error {
	data, err := c.Execute(ctx, Request{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return err
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return &Error{Op: op, Kind: ErrClient, Err: err}
	}
	raw, ok := envelope[field]
	if !ok || string(raw) == "null" {
		return &Error{Op: op, Kind: ErrNotFound}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Kind: ErrClient, Err: err}
	}
	return nil
}

func listVars(filter FindFilter, objectFilterName string, objectFilter map[string]any) map[string]any {
	vars := map[string]any{"filter": filter}
	if len(objectFilter) > 0 {
		vars[objectFilterName] = objectFilter
	}
	return vars
}

// FindScenes returns a page of scenes matching sceneFilter. When ids is not
// empty only those scenes are considered.
func (c *Client) FindScenes(ctx context.Context, filter FindFilter, sceneFilter map[string]any, ids []string) (ScenesResult, error) {
	q := `query FindScenes($filter: FindFilterType, $scene_filter: SceneFilterType, $ids: [ID!]) {
  findScenes(filter: $filter, scene_filter: $scene_filter, ids: $ids) { count scenes {` + sceneFields + ` } }
}`
	vars := listVars(filter, "scene_filter", sceneFilter)
	if len(ids) > 0 {
		vars["ids"] = ids
	}
	var r ScenesResult
	err := c.query(ctx, "FindScenes", "findScenes", q, vars, &r)
	return r, err
}

// CountScenes returns the number of scenes matching sceneFilter.
func (c *Client) CountScenes(ctx context.Context, sceneFilter map[string]any) (int, error) {
	q := `query CountScenes($filter: FindFilterType, $scene_filter: SceneFilterType) {
  findScenes(filter: $filter, scene_filter: $scene_filter) { count }
}`
	var r ScenesResult
	err := c.query(ctx, "CountScenes", "findScenes", q, listVars(FindFilter{PerPage: 0}, "scene_filter", sceneFilter), &r)
	return r.Count, err
}

// FindScene returns a single scene.
func (c *Client) FindScene(ctx context.Context, id string) (*Scene, error) {
	q := `query FindScene($id: ID!) { findScene(id: $id) {` + sceneFields + ` } }`
	var s Scene
	if err := c.query(ctx, "FindScene", "findScene", q, map[string]any{"id": id}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) FindStudios(ctx context.Context, filter FindFilter, studioFilter map[string]any) (StudiosResult, error) {
	q := `query FindStudios($filter: FindFilterType, $studio_filter: StudioFilterType) {
  findStudios(filter: $filter, studio_filter: $studio_filter) { count studios { ` + studioFields + ` } }
}`
	var r StudiosResult
	err := c.query(ctx, "FindStudios", "findStudios", q, listVars(filter, "studio_filter", studioFilter), &r)
	return r, err
}

func (c *Client) FindStudio(ctx context.Context, id string) (*Studio, error) {
	q := `query FindStudio($id: ID!) { findStudio(id: $id) { ` + studioFields + ` } }`
	var s Studio
	if err := c.query(ctx, "FindStudio", "findStudio", q, map[string]any{"id": id}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) FindPerformers(ctx context.Context, filter FindFilter, performerFilter map[string]any) (PerformersResult, error) {
	q := `query FindPerformers($filter: FindFilterType, $performer_filter: PerformerFilterType) {
  findPerformers(filter: $filter, performer_filter: $performer_filter) { count performers { ` + performerFields + ` } }
}`
	var r PerformersResult
	err := c.query(ctx, "FindPerformers", "findPerformers", q, listVars(filter, "performer_filter", performerFilter), &r)
	return r, err
}

func (c *Client) FindPerformer(ctx context.Context, id string) (*Performer, error) {
	q := `query FindPerformer($id: ID!) { findPerformer(id: $id) { ` + performerFields + ` } }`
	var p Performer
	if err := c.query(ctx, "FindPerformer", "findPerformer", q, map[string]any{"id": id}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) FindGroups(ctx context.Context, filter FindFilter, groupFilter map[string]any) (GroupsResult, error) {
	q := `query FindGroups($filter: FindFilterType, $group_filter: GroupFilterType) {
  findGroups(filter: $filter, group_filter: $group_filter) { count groups { ` + groupFields + ` } }
}`
	var r GroupsResult
	err := c.query(ctx, "FindGroups", "findGroups", q, listVars(filter, "group_filter", groupFilter), &r)
	return r, err
}

func (c *Client) FindGroup(ctx context.Context, id string) (*Group, error) {
	q := `query FindGroup($id: ID!) { findGroup(id: $id) { ` + groupFields + ` } }`
	var g Group
	if err := c.query(ctx, "FindGroup", "findGroup", q, map[string]any{"id": id}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) FindTags(ctx context.Context, filter FindFilter, tagFilter map[string]any) (TagsResult, error) {
	q := `query FindTags($filter: FindFilterType, $tag_filter: TagFilterType) {
  findTags(filter: $filter, tag_filter: $tag_filter) { count tags { ` + tagFields + ` } }
}`
	var r TagsResult
	err := c.query(ctx, "FindTags", "findTags", q, listVars(filter, "tag_filter", tagFilter), &r)
	return r, err
}

func (c *Client) FindTag(ctx context.Context, id string) (*Tag, error) {
	q := `query FindTag($id: ID!) { findTag(id: $id) { ` + tagFields + ` } }`
	var t Tag
	if err := c.query(ctx, "FindTag", "findTag", q, map[string]any{"id": id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTagByName returns the tag with exactly this name.
func (c *Client) FindTagByName(ctx context.Context, name string) (*Tag, error) {
	r, err := c.FindTags(ctx, FindFilter{PerPage: 1}, map[string]any{
		"name": map[string]any{"value": name, "modifier": "EQUALS"},
	})
	if err != nil {
		return nil, err
	}
	if len(r.Tags) == 0 {
		return nil, &Error{Op: "FindTags", Kind: ErrNotFound, Err: fmt.Errorf("tag %q", name)}
	}
	return &r.Tags[0], nil
}

// FindSavedFilters returns all saved filters of a mode.
func (c *Client) FindSavedFilters(ctx context.Context, mode FilterMode) ([]SavedFilter, error) {
	q := `query FindSavedFilters($mode: FilterMode) { findSavedFilters(mode: $mode) { ` + savedFilterFields + ` } }`
	var filters []SavedFilter
	err := c.query(ctx, "FindSavedFilters", "findSavedFilters", q, map[string]any{"mode": mode}, &filters)
	return filters, err
}

func (c *Client) FindSavedFilter(ctx context.Context, id string) (*SavedFilter, error) {
	q := `query FindSavedFilter($id: ID!) { findSavedFilter(id: $id) { ` + savedFilterFields + ` } }`
	var f SavedFilter
	if err := c.query(ctx, "FindSavedFilter", "findSavedFilter", q, map[string]any{"id": id}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Version returns the version string of the backend.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	err := c.query(ctx, "Version", "version", `query Version { version { version } }`, nil, &v)
	return v.Version, err
}

// StreamPath returns the backend path streaming the scene's primary file.
func StreamPath(sceneID string) string {
	return "/scene/" + url.PathEscape(sceneID) + "/stream"
}

// ScreenshotPath returns the backend path of the scene screenshot.
func ScreenshotPath(sceneID string) string {
	return "/scene/" + url.PathEscape(sceneID) + "/screenshot"
}

// CaptionPath returns the backend path of a scene caption file.
func CaptionPath(sceneID, lang, captionType string) string {
	v := url.Values{}
	v.Set("lang", lang)
	v.Set("type", captionType)
	return "/scene/" + url.PathEscape(sceneID) + "/caption?" + v.Encode()
}
