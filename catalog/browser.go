// Package catalog maps the hierarchical browsing model of Jellyfin clients
// (views, folders, items) onto Stash queries.
package catalog

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/erikbos/stashfin/catalog/criteria"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/stash"
)

// Backend is the subset of the Stash client the browser needs.
type Backend interface {
	FindScenes(ctx context.Context, filter stash.FindFilter, sceneFilter map[string]any, ids []string) (stash.ScenesResult, error)
	CountScenes(ctx context.Context, sceneFilter map[string]any) (int, error)
	FindScene(ctx context.Context, id string) (*stash.Scene, error)
	FindStudios(ctx context.Context, filter stash.FindFilter, studioFilter map[string]any) (stash.StudiosResult, error)
	FindStudio(ctx context.Context, id string) (*stash.Studio, error)
	FindPerformers(ctx context.Context, filter stash.FindFilter, performerFilter map[string]any) (stash.PerformersResult, error)
	FindPerformer(ctx context.Context, id string) (*stash.Performer, error)
	FindGroups(ctx context.Context, filter stash.FindFilter, groupFilter map[string]any) (stash.GroupsResult, error)
	FindGroup(ctx context.Context, id string) (*stash.Group, error)
	FindTags(ctx context.Context, filter stash.FindFilter, tagFilter map[string]any) (stash.TagsResult, error)
	FindTag(ctx context.Context, id string) (*stash.Tag, error)
	FindTagByName(ctx context.Context, name string) (*stash.Tag, error)
	FindSavedFilters(ctx context.Context, mode stash.FilterMode) ([]stash.SavedFilter, error)
	FindSavedFilter(ctx context.Context, id string) (*stash.SavedFilter, error)
}

// Settings are the runtime adjustable browsing options.
type Settings struct {
	// Collections are the enabled top level collections in display order.
	Collections []Collection
	// TagGroups are tag names exposed as their own top level library.
	TagGroups []string
	// Latest lists collections and tag group names taking part in "latest".
	Latest []string
	// FilterModes lists collections whose saved filters are browsable.
	FilterModes []Collection
}

var (
	// ErrNotFound is returned for ids the backend does not know.
	ErrNotFound = errors.New("item not found")
	// ErrNotFolder is returned when listing children of a scene.
	ErrNotFolder = errors.New("item is not a folder")
)

// filtersFolderName is the name of the synthetic saved filter folder.
const filtersFolderName = "FILTERS"

// Browser lists children of navigation nodes.
type Browser struct {
	backend  Backend
	mu       sync.RWMutex
	settings Settings
	log      zerolog.Logger
}

// New returns a browser backed by backend.
func New(backend Backend, s Settings) *Browser {
	return &Browser{
		backend:  backend,
		settings: s,
		log:      logging.WithComponent("catalog"),
	}
}

// Reconfigure replaces the browsing settings.
func (b *Browser) Reconfigure(s Settings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = s
}

func (b *Browser) currentSettings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// degrade logs a backend failure. Listings fall back to empty results so
// clients show an empty folder instead of an error.
func (b *Browser) degrade(err error, node Node) {
	b.log.Warn().Err(err).Str("node", node.String()).Msg("backend query failed, returning empty result")
}

// Views returns the top level folders: enabled collections and tag groups.
// Child counts are fetched concurrently.
func (b *Browser) Views(ctx context.Context) []FolderSummary {
	s := b.currentSettings()

	views := make([]FolderSummary, 0, len(s.Collections)+len(s.TagGroups))
	for _, c := range s.Collections {
		views = append(views, FolderSummary{
			Node: CollectionRoot(c),
			Kind: FolderCollection,
			Name: c.DisplayName(),
		})
	}
	for _, name := range s.TagGroups {
		views = append(views, FolderSummary{
			Node: TagGroup(name),
			Kind: FolderTagGroup,
			Name: name,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range views {
		g.Go(func() error {
			views[i].ChildCount = b.childCount(gctx, views[i])
			return nil
		})
	}
	_ = g.Wait()
	return views
}

// childCount returns the number of children of a top level folder, 0 on failure.
func (b *Browser) childCount(ctx context.Context, f FolderSummary) int {
	var (
		count int
		err   error
	)
	switch {
	case f.Kind == FolderTagGroup:
		var filter map[string]any
		if filter, err = b.tagGroupFilter(ctx, f.Name); err == nil {
			count, err = b.backend.CountScenes(ctx, filter)
		}
	case f.Node.Collection == Scenes:
		count, err = b.backend.CountScenes(ctx, nil)
	case f.Node.Collection == Studios:
		var r stash.StudiosResult
		r, err = b.backend.FindStudios(ctx, stash.FindFilter{PerPage: 1}, hasScenes)
		count = r.Count
	case f.Node.Collection == Performers:
		var r stash.PerformersResult
		r, err = b.backend.FindPerformers(ctx, stash.FindFilter{PerPage: 1}, hasScenes)
		count = r.Count
	case f.Node.Collection == Groups:
		var r stash.GroupsResult
		r, err = b.backend.FindGroups(ctx, stash.FindFilter{PerPage: 1}, nil)
		count = r.Count
	case f.Node.Collection == Tags:
		count = 2
	}
	if err != nil {
		b.degrade(err, f.Node)
		return 0
	}
	return count
}

// hasScenes hides studios and performers without any scene.
var hasScenes = map[string]any{
	"scene_count": map[string]any{"value": 0, "modifier": "GREATER_THAN"},
}

// ListChildren returns one page of the children of node.
func (b *Browser) ListChildren(ctx context.Context, node Node, page Page, sort Sort) (Listing, error) {
	switch node.Kind {
	case NodeRoot:
		views := b.Views(ctx)
		entries := make([]Entry, 0, len(views))
		for _, v := range sliceWindow(views, page) {
			entries = append(entries, folderEntry(v))
		}
		return Listing{Entries: entries, Total: len(views)}, nil

	case NodeCollection:
		return b.listCollection(ctx, node, page, sort)

	case NodeTagGroup:
		name, ok := b.tagGroupName(node.Slug)
		if !ok {
			return Listing{}, ErrNotFound
		}
		filter, err := b.tagGroupFilter(ctx, name)
		if err != nil {
			b.degrade(err, node)
			return Listing{}, nil
		}
		return b.listScenes(ctx, node, page, sort, "", filter)

	case NodeFilterList:
		filters := b.savedFilters(ctx, node.Collection)
		entries := make([]Entry, 0, len(filters))
		for _, f := range sliceWindow(filters, page) {
			entries = append(entries, folderEntry(savedFilterFolder(node.Collection, f)))
		}
		return Listing{Entries: entries, Total: len(filters)}, nil

	case NodeFilter:
		return b.listSavedFilter(ctx, node, page, sort)

	case NodeEntity:
		return b.listScenes(ctx, node, page, sort, "", entitySceneFilter(node))

	case NodeTagsFavorites:
		return b.listTags(ctx, node, page, sort, map[string]any{"favorite": true})

	case NodeTagsAll:
		return b.listTags(ctx, node, page, sort, hasScenes)

	case NodeScene:
		return Listing{}, ErrNotFolder
	}
	return Listing{}, ErrNotFound
}

func (b *Browser) listCollection(ctx context.Context, node Node, page Page, sort Sort) (Listing, error) {
	var (
		listing Listing
		err     error
	)
	switch node.Collection {
	case Tags:
		folders := []FolderSummary{
			{Node: TagsFavorites(), Kind: FolderTagList, Name: "Favorites"},
			{Node: TagsAll(), Kind: FolderTagList, Name: "All Tags"},
		}
		entries := make([]Entry, 0, len(folders))
		for _, f := range sliceWindow(folders, page) {
			entries = append(entries, folderEntry(f))
		}
		return Listing{Entries: entries, Total: len(folders)}, nil
	case Scenes:
		listing, err = b.listScenes(ctx, node, page, sort, "", nil)
	default:
		listing, err = b.listEntities(ctx, node, node.Collection, page, sort, "", nil)
	}
	if err != nil {
		return listing, err
	}

	if !b.hasBrowsableFilters(ctx, node.Collection) {
		return listing, nil
	}
	// The FILTERS folder sits in front of the real entries without
	// shifting their offsets.
	listing.Total++
	if page.Offset <= 0 {
		filters := FolderSummary{
			Node: FilterList(node.Collection),
			Kind: FolderFilterList,
			Name: filtersFolderName,
		}
		listing.Entries = append([]Entry{folderEntry(filters)}, listing.Entries...)
	}
	return listing, nil
}

// listScenes lists scenes matching sceneFilter and free text q.
func (b *Browser) listScenes(ctx context.Context, node Node, page Page, sort Sort, q string, sceneFilter map[string]any) (Listing, error) {
	scenes, total, err := fetchWindow(ctx, page, func(ctx context.Context, p, perPage int) ([]stash.Scene, int, error) {
		ff := sort.findFilter(p, perPage)
		ff.Q = q
		r, err := b.backend.FindScenes(ctx, ff, sceneFilter, nil)
		return r.Scenes, r.Count, err
	})
	if err != nil {
		b.degrade(err, node)
		return Listing{}, nil
	}
	entries := make([]Entry, 0, len(scenes))
	for _, s := range scenes {
		entries = append(entries, mediaEntry(sceneToMedia(s)))
	}
	return Listing{Entries: entries, Total: total}, nil
}

// listEntities lists studios, performers or groups as folders.
func (b *Browser) listEntities(ctx context.Context, node Node, c Collection, page Page, sort Sort, q string, filter map[string]any) (Listing, error) {
	es := sort.forEntities()
	var fetch pageFetcher[FolderSummary]
	switch c {
	case Studios:
		if filter == nil {
			filter = hasScenes
		}
		fetch = func(ctx context.Context, p, perPage int) ([]FolderSummary, int, error) {
			ff := es.findFilter(p, perPage)
			ff.Q = q
			r, err := b.backend.FindStudios(ctx, ff, filter)
			folders := make([]FolderSummary, 0, len(r.Studios))
			for _, s := range r.Studios {
				folders = append(folders, studioToFolder(s))
			}
			return folders, r.Count, err
		}
	case Performers:
		if filter == nil {
			filter = hasScenes
		}
		fetch = func(ctx context.Context, p, perPage int) ([]FolderSummary, int, error) {
			ff := es.findFilter(p, perPage)
			ff.Q = q
			r, err := b.backend.FindPerformers(ctx, ff, filter)
			folders := make([]FolderSummary, 0, len(r.Performers))
			for _, perf := range r.Performers {
				folders = append(folders, performerToFolder(perf))
			}
			return folders, r.Count, err
		}
	case Groups:
		fetch = func(ctx context.Context, p, perPage int) ([]FolderSummary, int, error) {
			ff := es.findFilter(p, perPage)
			ff.Q = q
			r, err := b.backend.FindGroups(ctx, ff, filter)
			folders := make([]FolderSummary, 0, len(r.Groups))
			for _, g := range r.Groups {
				folders = append(folders, groupToFolder(g))
			}
			return folders, r.Count, err
		}
	case Tags:
		return b.listTags(ctx, node, page, sort, filter)
	default:
		return Listing{}, ErrNotFound
	}

	folders, total, err := fetchWindow(ctx, page, fetch)
	if err != nil {
		b.degrade(err, node)
		return Listing{}, nil
	}
	entries := make([]Entry, 0, len(folders))
	for _, f := range folders {
		entries = append(entries, folderEntry(f))
	}
	return Listing{Entries: entries, Total: total}, nil
}

func (b *Browser) listTags(ctx context.Context, node Node, page Page, sort Sort, filter map[string]any) (Listing, error) {
	es := sort.forEntities()
	tags, total, err := fetchWindow(ctx, page, func(ctx context.Context, p, perPage int) ([]stash.Tag, int, error) {
		r, err := b.backend.FindTags(ctx, es.findFilter(p, perPage), filter)
		return r.Tags, r.Count, err
	})
	if err != nil {
		b.degrade(err, node)
		return Listing{}, nil
	}
	entries := make([]Entry, 0, len(tags))
	for _, t := range tags {
		entries = append(entries, folderEntry(tagToFolder(t)))
	}
	return Listing{Entries: entries, Total: total}, nil
}

// listSavedFilter applies a saved filter to its collection. The filter's
// own sort applies unless the client asked for one.
func (b *Browser) listSavedFilter(ctx context.Context, node Node, page Page, sort Sort) (Listing, error) {
	f, err := b.backend.FindSavedFilter(ctx, node.ID)
	if err != nil {
		if errors.Is(err, stash.ErrNotFound) {
			return Listing{}, ErrNotFound
		}
		b.degrade(err, node)
		return Listing{}, nil
	}
	objectFilter, err := criteria.TranslateJSON(f.ObjectFilter, f.Mode)
	if err != nil {
		b.log.Warn().Err(err).Str("filter", f.ID).Msg("cannot parse saved filter")
		return Listing{}, nil
	}

	q := ""
	if f.FindFilter != nil {
		q = f.FindFilter.Q
		if !sort.Explicit && f.FindFilter.Sort != "" {
			sort = Sort{Field: f.FindFilter.Sort, Direction: stash.SortAsc, Explicit: true}
			if f.FindFilter.Direction != "" {
				sort.Direction = f.FindFilter.Direction
			}
		}
	}

	c := CollectionForMode(f.Mode)
	if c == Scenes {
		return b.listScenes(ctx, node, page, sort, q, objectFilter)
	}
	return b.listEntities(ctx, node, c, page, sort, q, objectFilter)
}

// savedFilters returns the browsable saved filters of c, hiding sort-only ones.
func (b *Browser) savedFilters(ctx context.Context, c Collection) []stash.SavedFilter {
	if !slices.Contains(b.currentSettings().FilterModes, c) {
		return nil
	}
	all, err := b.backend.FindSavedFilters(ctx, c.Mode())
	if err != nil {
		b.degrade(err, FilterList(c))
		return nil
	}
	filters := make([]stash.SavedFilter, 0, len(all))
	for _, f := range all {
		if f.Name == "" || criteria.SavedFilterIsSortOnly(f) {
			continue
		}
		filters = append(filters, f)
	}
	return filters
}

func (b *Browser) hasBrowsableFilters(ctx context.Context, c Collection) bool {
	if c == Tags {
		return false
	}
	return len(b.savedFilters(ctx, c)) > 0
}

func savedFilterFolder(c Collection, f stash.SavedFilter) FolderSummary {
	return FolderSummary{
		Node: Filter(c, f.ID),
		Kind: FolderFilter,
		Name: f.Name,
	}
}

// tagGroupName resolves a slug to its configured tag name.
func (b *Browser) tagGroupName(slug string) (string, bool) {
	for _, name := range b.currentSettings().TagGroups {
		if Slug(name) == slug {
			return name, true
		}
	}
	return "", false
}

func (b *Browser) tagGroupFilter(ctx context.Context, name string) (map[string]any, error) {
	tag, err := b.backend.FindTagByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tags": map[string]any{"value": []string{tag.ID}, "modifier": "INCLUDES"},
	}, nil
}

// entitySceneFilter selects the scenes of a studio, performer, group or tag.
func entitySceneFilter(n Node) map[string]any {
	return map[string]any{
		string(n.Collection): map[string]any{"value": []string{n.ID}, "modifier": "INCLUDES"},
	}
}
