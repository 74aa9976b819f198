package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbos/stashfin/stash"
)

// fakeBackend serves a fixed set of scenes, studios and saved filters.
type fakeBackend struct {
	scenes       []stash.Scene
	studios      []stash.Studio
	savedFilters []stash.SavedFilter
	tags         []stash.Tag
	fail         error

	lastSceneFilter map[string]any
	lastFindFilter  stash.FindFilter
	perPages        []int
}

func newFakeBackend(sceneCount int) *fakeBackend {
	f := &fakeBackend{}
	for i := 1; i <= sceneCount; i++ {
		f.scenes = append(f.scenes, stash.Scene{ID: strconv.Itoa(i), Title: fmt.Sprintf("Scene %d", i)})
	}
	return f
}

func paginate[T any](all []T, filter stash.FindFilter) []T {
	if filter.PerPage <= 0 {
		return all
	}
	start := (max(filter.Page, 1) - 1) * filter.PerPage
	if start >= len(all) {
		return nil
	}
	return all[start:min(start+filter.PerPage, len(all))]
}

func (f *fakeBackend) FindScenes(ctx context.Context, filter stash.FindFilter, sceneFilter map[string]any, ids []string) (stash.ScenesResult, error) {
	if f.fail != nil {
		return stash.ScenesResult{}, f.fail
	}
	f.lastSceneFilter = sceneFilter
	f.lastFindFilter = filter
	f.perPages = append(f.perPages, filter.PerPage)
	scenes := f.scenes
	if len(ids) > 0 {
		scenes = nil
		for _, s := range f.scenes {
			for _, id := range ids {
				if s.ID == id {
					scenes = append(scenes, s)
				}
			}
		}
	}
	return stash.ScenesResult{Count: len(scenes), Scenes: paginate(scenes, filter)}, nil
}

func (f *fakeBackend) CountScenes(ctx context.Context, sceneFilter map[string]any) (int, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	return len(f.scenes), nil
}

func (f *fakeBackend) FindScene(ctx context.Context, id string) (*stash.Scene, error) {
	for _, s := range f.scenes {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, &stash.Error{Op: "FindScene", Kind: stash.ErrNotFound}
}

func (f *fakeBackend) FindStudios(ctx context.Context, filter stash.FindFilter, studioFilter map[string]any) (stash.StudiosResult, error) {
	return stash.StudiosResult{Count: len(f.studios), Studios: paginate(f.studios, filter)}, nil
}

func (f *fakeBackend) FindStudio(ctx context.Context, id string) (*stash.Studio, error) {
	for _, s := range f.studios {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, &stash.Error{Op: "FindStudio", Kind: stash.ErrNotFound}
}

func (f *fakeBackend) FindPerformers(ctx context.Context, filter stash.FindFilter, performerFilter map[string]any) (stash.PerformersResult, error) {
	return stash.PerformersResult{}, nil
}

func (f *fakeBackend) FindPerformer(ctx context.Context, id string) (*stash.Performer, error) {
	return &stash.Performer{ID: id, Name: "Performer " + id}, nil
}

func (f *fakeBackend) FindGroups(ctx context.Context, filter stash.FindFilter, groupFilter map[string]any) (stash.GroupsResult, error) {
	return stash.GroupsResult{}, nil
}

func (f *fakeBackend) FindGroup(ctx context.Context, id string) (*stash.Group, error) {
	return nil, &stash.Error{Op: "FindGroup", Kind: stash.ErrNotFound}
}

func (f *fakeBackend) FindTags(ctx context.Context, filter stash.FindFilter, tagFilter map[string]any) (stash.TagsResult, error) {
	return stash.TagsResult{Count: len(f.tags), Tags: paginate(f.tags, filter)}, nil
}

func (f *fakeBackend) FindTag(ctx context.Context, id string) (*stash.Tag, error) {
	return &stash.Tag{ID: id, Name: "Tag " + id}, nil
}

func (f *fakeBackend) FindTagByName(ctx context.Context, name string) (*stash.Tag, error) {
	for _, t := range f.tags {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, &stash.Error{Op: "FindTags", Kind: stash.ErrNotFound}
}

func (f *fakeBackend) FindSavedFilters(ctx context.Context, mode stash.FilterMode) ([]stash.SavedFilter, error) {
	var out []stash.SavedFilter
	for _, sf := range f.savedFilters {
		if sf.Mode == mode {
			out = append(out, sf)
		}
	}
	return out, nil
}

func (f *fakeBackend) FindSavedFilter(ctx context.Context, id string) (*stash.SavedFilter, error) {
	for _, sf := range f.savedFilters {
		if sf.ID == id {
			return &sf, nil
		}
	}
	return nil, &stash.Error{Op: "FindSavedFilter", Kind: stash.ErrNotFound}
}

func defaultSettings() Settings {
	return Settings{
		Collections: Collections,
		Latest:      []string{"scenes"},
		FilterModes: []Collection{Scenes, Studios, Performers, Groups},
	}
}

func sceneIDs(l Listing) []string {
	var ids []string
	for _, e := range l.Entries {
		if e.Media != nil {
			ids = append(ids, e.Media.ID)
		}
	}
	return ids
}

func TestPaginationSweepHasNoGapsOrDuplicates(t *testing.T) {
	const total = 137
	backend := newFakeBackend(total)
	b := New(backend, defaultSettings())
	node := CollectionRoot(Scenes)

	for _, limit := range []int{1, 7, 20, 33, 50, 64, 100, 200} {
		t.Run(strconv.Itoa(limit), func(t *testing.T) {
			seen := make(map[string]int)
			for offset := 0; offset < total; offset += limit {
				listing, err := b.ListChildren(context.Background(), node, Page{Offset: offset, Limit: limit}, ParseSort("", ""))
				require.NoError(t, err)
				assert.Equal(t, total, listing.Total)
				for _, id := range sceneIDs(listing) {
					seen[id]++
				}
			}
			assert.Len(t, seen, total)
			for id, n := range seen {
				assert.Equal(t, 1, n, "scene %s returned %d times", id, n)
			}
		})
	}
}

func TestPaginationVaryingLimits(t *testing.T) {
	backend := newFakeBackend(120)
	b := New(backend, defaultSettings())
	node := CollectionRoot(Scenes)

	var got []string
	offset := 0
	for _, limit := range []int{13, 50, 7, 31, 100} {
		listing, err := b.ListChildren(context.Background(), node, Page{Offset: offset, Limit: limit}, ParseSort("", ""))
		require.NoError(t, err)
		got = append(got, sceneIDs(listing)...)
		offset += limit
	}
	require.Len(t, got, 120)
	for i, id := range got {
		assert.Equal(t, strconv.Itoa(i+1), id)
	}
	// backend always sees the fixed page size
	for _, perPage := range backend.perPages {
		assert.Equal(t, internalPageSize, perPage)
	}
}

func TestFiltersFolderInjectedAtOffsetZero(t *testing.T) {
	backend := newFakeBackend(10)
	backend.savedFilters = []stash.SavedFilter{
		{ID: "1", Name: "Sorted", Mode: stash.ModeScenes, ObjectFilter: json.RawMessage(`{}`)},
		{ID: "2", Name: "Tagged", Mode: stash.ModeScenes, ObjectFilter: json.RawMessage(`{"tags":{"modifier":"INCLUDES","value":{"items":[{"id":"5"}],"excluded":[]}}}`)},
	}
	b := New(backend, defaultSettings())
	node := CollectionRoot(Scenes)

	first, err := b.ListChildren(context.Background(), node, Page{Offset: 0, Limit: 5}, ParseSort("", ""))
	require.NoError(t, err)
	assert.Equal(t, 11, first.Total)
	require.Len(t, first.Entries, 6)
	require.NotNil(t, first.Entries[0].Folder)
	assert.Equal(t, "FILTERS", first.Entries[0].Folder.Name)
	assert.Equal(t, "filters-scenes", first.Entries[0].Folder.ID())
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, sceneIDs(first))

	second, err := b.ListChildren(context.Background(), node, Page{Offset: 5, Limit: 5}, ParseSort("", ""))
	require.NoError(t, err)
	assert.Equal(t, 11, second.Total)
	assert.Equal(t, []string{"6", "7", "8", "9", "10"}, sceneIDs(second))

	filters, err := b.ListChildren(context.Background(), FilterList(Scenes), Page{}, ParseSort("", ""))
	require.NoError(t, err)
	require.Len(t, filters.Entries, 1)
	assert.Equal(t, "Tagged", filters.Entries[0].Folder.Name)
	assert.Equal(t, "filter-scenes-2", filters.Entries[0].Folder.ID())
}

func TestNoFiltersFolderWhenOnlySortOnly(t *testing.T) {
	backend := newFakeBackend(3)
	backend.savedFilters = []stash.SavedFilter{
		{ID: "1", Name: "Sorted", Mode: stash.ModeScenes, ObjectFilter: json.RawMessage(`{}`)},
	}
	b := New(backend, defaultSettings())

	listing, err := b.ListChildren(context.Background(), CollectionRoot(Scenes), Page{}, ParseSort("", ""))
	require.NoError(t, err)
	assert.Equal(t, 3, listing.Total)
	assert.Equal(t, []string{"1", "2", "3"}, sceneIDs(listing))
}

func TestSavedFilterApplied(t *testing.T) {
	backend := newFakeBackend(3)
	backend.savedFilters = []stash.SavedFilter{{
		ID:           "2",
		Name:         "Tagged",
		Mode:         stash.ModeScenes,
		FindFilter:   &stash.FindFilter{Sort: "title", Direction: "ASC"},
		ObjectFilter: json.RawMessage(`{"tags":{"modifier":"INCLUDES","value":{"items":[{"id":"5"}],"excluded":[]}}}`),
	}}
	b := New(backend, defaultSettings())

	_, err := b.ListChildren(context.Background(), Filter(Scenes, "2"), Page{Limit: 10}, ParseSort("", ""))
	require.NoError(t, err)

	tags := backend.lastSceneFilter["tags"].(map[string]any)
	assert.Equal(t, []string{"5"}, tags["value"])
	assert.Equal(t, "title", backend.lastFindFilter.Sort)
	assert.Equal(t, "ASC", backend.lastFindFilter.Direction)

	_, err = b.ListChildren(context.Background(), Filter(Scenes, "404"), Page{Limit: 10}, ParseSort("", ""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntitySceneFilter(t *testing.T) {
	backend := newFakeBackend(2)
	b := New(backend, defaultSettings())

	_, err := b.ListChildren(context.Background(), Entity(Studios, "3"), Page{Limit: 10}, ParseSort("", ""))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"studios": map[string]any{"value": []string{"3"}, "modifier": "INCLUDES"},
	}, backend.lastSceneFilter)
}

func TestTagGroupListsTaggedScenes(t *testing.T) {
	backend := newFakeBackend(2)
	backend.tags = []stash.Tag{{ID: "42", Name: "Virtual Reality"}}
	settings := defaultSettings()
	settings.TagGroups = []string{"Virtual Reality"}
	b := New(backend, settings)

	node, err := ParseNode("taggroup-virtual-reality")
	require.NoError(t, err)

	listing, err := b.ListChildren(context.Background(), node, Page{Limit: 10}, ParseSort("", ""))
	require.NoError(t, err)
	assert.Equal(t, 2, listing.Total)
	tags := backend.lastSceneFilter["tags"].(map[string]any)
	assert.Equal(t, []string{"42"}, tags["value"])

	_, err = b.ListChildren(context.Background(), TagGroup("unknown"), Page{}, ParseSort("", ""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestHonoursAllowList(t *testing.T) {
	backend := newFakeBackend(30)
	backend.studios = []stash.Studio{{ID: "1", Name: "A"}}
	b := New(backend, defaultSettings())

	latest := b.Latest(context.Background(), CollectionRoot(Scenes), 5)
	assert.Len(t, latest, 5)
	assert.Equal(t, "created_at", backend.lastFindFilter.Sort)
	assert.Equal(t, stash.SortDesc, backend.lastFindFilter.Direction)

	assert.Empty(t, b.Latest(context.Background(), CollectionRoot(Studios), 5))
}

func TestBackendFailureDegradesToEmpty(t *testing.T) {
	backend := newFakeBackend(5)
	backend.fail = &stash.Error{Op: "FindScenes", Kind: stash.ErrUnavailable}
	b := New(backend, defaultSettings())

	listing, err := b.ListChildren(context.Background(), CollectionRoot(Scenes), Page{Limit: 10}, ParseSort("", ""))
	require.NoError(t, err)
	assert.Empty(t, listing.Entries)
	assert.Zero(t, listing.Total)

	views := b.Views(context.Background())
	require.NotEmpty(t, views)
	assert.Zero(t, views[0].ChildCount)
}

func TestViews(t *testing.T) {
	backend := newFakeBackend(4)
	settings := defaultSettings()
	settings.Collections = []Collection{Scenes, Tags}
	settings.TagGroups = []string{"VR"}
	backend.tags = []stash.Tag{{ID: "9", Name: "VR"}}
	b := New(backend, settings)

	views := b.Views(context.Background())
	require.Len(t, views, 3)
	assert.Equal(t, "root-scenes", views[0].ID())
	assert.Equal(t, 4, views[0].ChildCount)
	assert.Equal(t, "root-tags", views[1].ID())
	assert.Equal(t, 2, views[1].ChildCount)
	assert.Equal(t, "taggroup-vr", views[2].ID())
}

func TestLookup(t *testing.T) {
	backend := newFakeBackend(3)
	b := New(backend, defaultSettings())

	e, err := b.Lookup(context.Background(), Scene("2"))
	require.NoError(t, err)
	require.NotNil(t, e.Media)
	assert.Equal(t, "Scene 2", e.Media.Title)

	_, err = b.Lookup(context.Background(), Scene("99"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.Lookup(context.Background(), Entity(Groups, "1"))
	assert.ErrorIs(t, err, ErrNotFound)

	entries := b.LookupMany(context.Background(), []Node{Scene("3"), Entity(Performers, "8"), Scene("1"), Scene("77")})
	require.Len(t, entries, 3)
	assert.Equal(t, "3", entries[0].Media.ID)
	assert.Equal(t, "performer-8", entries[1].Folder.ID())
	assert.Equal(t, "1", entries[2].Media.ID)
}
