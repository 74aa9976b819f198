package catalog

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/erikbos/stashfin/stash"
)

// Latest returns the newest children of a top level folder. Only folders
// on the latest allow-list take part; all others yield nothing.
func (b *Browser) Latest(ctx context.Context, node Node, limit int) []Entry {
	if !b.latestAllowed(node) {
		return nil
	}
	if limit <= 0 {
		limit = 16
	}
	newest := Sort{Field: "created_at", Direction: stash.SortDesc, Explicit: true}
	page := Page{Limit: limit}

	var (
		listing Listing
		err     error
	)
	switch node.Kind {
	case NodeTagGroup:
		listing, err = b.ListChildren(ctx, node, page, newest)
	case NodeCollection:
		if node.Collection == Scenes {
			listing, err = b.listScenes(ctx, node, page, newest, "", nil)
		} else {
			listing, err = b.listEntities(ctx, node, node.Collection, page, newest, "", nil)
		}
	}
	if err != nil {
		return nil
	}
	return listing.Entries
}

func (b *Browser) latestAllowed(node Node) bool {
	s := b.currentSettings()
	switch node.Kind {
	case NodeCollection:
		return slices.Contains(s.Latest, string(node.Collection))
	case NodeTagGroup:
		for _, name := range s.Latest {
			if Slug(name) == node.Slug {
				return true
			}
		}
	}
	return false
}

// Search delegates free text matching to the backend. People searches
// return performer folders, everything else matches scenes.
func (b *Browser) Search(ctx context.Context, term string, people bool, page Page, sort Sort) Listing {
	node := CollectionRoot(Scenes)
	if people {
		node = CollectionRoot(Performers)
		listing, _ := b.listEntities(ctx, node, Performers, page, sort, term, nil)
		return listing
	}
	listing, _ := b.listScenes(ctx, node, page, sort, term, nil)
	return listing
}

// ScenesWith lists the scenes of an entity, e.g. all scenes of a performer.
func (b *Browser) ScenesWith(ctx context.Context, entity Node, page Page, sort Sort) Listing {
	if entity.Kind != NodeEntity {
		return Listing{}
	}
	listing, _ := b.listScenes(ctx, entity, page, sort, "", entitySceneFilter(entity))
	return listing
}

// Lookup returns the item identified by node.
func (b *Browser) Lookup(ctx context.Context, node Node) (Entry, error) {
	switch node.Kind {
	case NodeScene:
		m, err := b.Scene(ctx, node.ID)
		if err != nil {
			return Entry{}, err
		}
		return mediaEntry(*m), nil

	case NodeRoot:
		return folderEntry(FolderSummary{Node: node, Kind: FolderCollection, Name: "Media Folders"}), nil

	case NodeCollection:
		if !slices.Contains(b.currentSettings().Collections, node.Collection) {
			return Entry{}, ErrNotFound
		}
		f := FolderSummary{Node: node, Kind: FolderCollection, Name: node.Collection.DisplayName()}
		f.ChildCount = b.childCount(ctx, f)
		return folderEntry(f), nil

	case NodeTagGroup:
		name, ok := b.tagGroupName(node.Slug)
		if !ok {
			return Entry{}, ErrNotFound
		}
		f := FolderSummary{Node: node, Kind: FolderTagGroup, Name: name}
		f.ChildCount = b.childCount(ctx, f)
		return folderEntry(f), nil

	case NodeFilterList:
		filters := b.savedFilters(ctx, node.Collection)
		return folderEntry(FolderSummary{
			Node:       node,
			Kind:       FolderFilterList,
			Name:       filtersFolderName,
			ChildCount: len(filters),
		}), nil

	case NodeFilter:
		f, err := b.backend.FindSavedFilter(ctx, node.ID)
		if err != nil {
			return Entry{}, notFound(err)
		}
		return folderEntry(savedFilterFolder(node.Collection, *f)), nil

	case NodeTagsFavorites:
		return folderEntry(FolderSummary{Node: node, Kind: FolderTagList, Name: "Favorites"}), nil

	case NodeTagsAll:
		return folderEntry(FolderSummary{Node: node, Kind: FolderTagList, Name: "All Tags"}), nil

	case NodeEntity:
		return b.lookupEntity(ctx, node)
	}
	return Entry{}, ErrNotFound
}

func (b *Browser) lookupEntity(ctx context.Context, node Node) (Entry, error) {
	switch node.Collection {
	case Studios:
		s, err := b.backend.FindStudio(ctx, node.ID)
		if err != nil {
			return Entry{}, notFound(err)
		}
		return folderEntry(studioToFolder(*s)), nil
	case Performers:
		p, err := b.backend.FindPerformer(ctx, node.ID)
		if err != nil {
			return Entry{}, notFound(err)
		}
		return folderEntry(performerToFolder(*p)), nil
	case Groups:
		g, err := b.backend.FindGroup(ctx, node.ID)
		if err != nil {
			return Entry{}, notFound(err)
		}
		return folderEntry(groupToFolder(*g)), nil
	case Tags:
		t, err := b.backend.FindTag(ctx, node.ID)
		if err != nil {
			return Entry{}, notFound(err)
		}
		return folderEntry(tagToFolder(*t)), nil
	}
	return Entry{}, ErrNotFound
}

// Scene fetches a single scene.
func (b *Browser) Scene(ctx context.Context, id string) (*MediaItem, error) {
	s, err := b.backend.FindScene(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	m := sceneToMedia(*s)
	return &m, nil
}

// LookupMany resolves a list of ids, keeping their order. Scenes are
// fetched in one query; unknown ids are skipped.
func (b *Browser) LookupMany(ctx context.Context, nodes []Node) []Entry {
	var sceneIDs []string
	for _, n := range nodes {
		if n.Kind == NodeScene {
			sceneIDs = append(sceneIDs, n.ID)
		}
	}
	scenes := make(map[string]MediaItem)
	if len(sceneIDs) > 0 {
		r, err := b.backend.FindScenes(ctx, stash.FindFilter{PerPage: -1}, nil, sceneIDs)
		if err != nil {
			b.degrade(err, Scene(strings.Join(sceneIDs, ",")))
		}
		for _, s := range r.Scenes {
			scenes[s.ID] = sceneToMedia(s)
		}
	}

	entries := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == NodeScene {
			if m, ok := scenes[n.ID]; ok {
				entries = append(entries, mediaEntry(m))
			}
			continue
		}
		if e, err := b.Lookup(ctx, n); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

// notFound maps backend lookup errors to ErrNotFound, keeping the cause.
func notFound(err error) error {
	if errors.Is(err, stash.ErrNotFound) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}
