package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/erikbos/stashfin/stash"
)

// Collection is one of the browsable kinds of backend objects.
type Collection string

const (
	Scenes     Collection = "scenes"
	Studios    Collection = "studios"
	Performers Collection = "performers"
	Groups     Collection = "groups"
	Tags       Collection = "tags"
)

// Collections in default display order.
var Collections = []Collection{Scenes, Studios, Performers, Groups, Tags}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case Scenes, Studios, Performers, Groups, Tags:
		return true
	}
	return false
}

// DisplayName is the library name shown to clients.
func (c Collection) DisplayName() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Mode returns the saved filter mode of the collection.
func (c Collection) Mode() stash.FilterMode {
	return stash.FilterMode(strings.ToUpper(string(c)))
}

// entityPrefix returns the singular id prefix used for objects of c.
func (c Collection) entityPrefix() string {
	return strings.TrimSuffix(string(c), "s")
}

// CollectionForMode maps a saved filter mode back to its collection.
func CollectionForMode(mode stash.FilterMode) Collection {
	return Collection(strings.ToLower(string(mode)))
}

// NodeKind is the variant of a navigation node.
type NodeKind int

const (
	NodeRoot NodeKind = iota
	// NodeCollection is a top level collection folder, e.g. all studios.
	NodeCollection
	// NodeTagGroup is a top level library of scenes carrying a configured tag.
	NodeTagGroup
	// NodeFilterList lists the saved filters of one collection.
	NodeFilterList
	// NodeFilter is a saved filter applied to its collection.
	NodeFilter
	// NodeEntity is a single studio, performer, group or tag.
	NodeEntity
	NodeTagsFavorites
	NodeTagsAll
	// NodeScene is a playable scene, the only non-folder node.
	NodeScene
)

// Node identifies a browsable location or a scene.
type Node struct {
	Kind NodeKind
	// Collection is set for collection, filter list, filter and entity nodes.
	// For entities it is the collection the entity belongs to.
	Collection Collection
	// Slug identifies a tag group.
	Slug string
	// ID is the numeric backend id of an entity, scene or saved filter.
	ID string
}

// Identifiers of fixed nodes and id prefixes.
const (
	rootID          = "root"
	tagsFavoritesID = "tags-favorites"
	tagsAllID       = "tags-all"
	collectionPfx   = "root-"
	tagGroupPfx     = "taggroup-"
	filterListPfx   = "filters-"
	filterPfx       = "filter-"
	scenePfx        = "scene-"
)

// ErrInvalidID is returned when an id does not parse as a node.
var ErrInvalidID = errors.New("invalid item id")

func Root() Node { return Node{Kind: NodeRoot} }
func CollectionRoot(c Collection) Node { return Node{Kind: NodeCollection, Collection: c} }
func TagGroup(name string) Node { return Node{Kind: NodeTagGroup, Slug: Slug(name)} }
func FilterList(c Collection) Node { return Node{Kind: NodeFilterList, Collection: c} }
func Filter(c Collection, id string) Node { return Node{Kind: NodeFilter, Collection: c, ID: id} }
func Entity(c Collection, id string) Node { return Node{Kind: NodeEntity, Collection: c, ID: id} }
func Scene(id string) Node { return Node{Kind: NodeScene, ID: id} }
func TagsFavorites() Node { return Node{Kind: NodeTagsFavorites} }
func TagsAll() Node { return Node{Kind: NodeTagsAll} }

// IsFolder reports whether the node has children.
func (n Node) IsFolder() bool {
	return n.Kind != NodeScene
}

// String returns the client visible identifier of the node.
func (n Node) String() string {
	switch n.Kind {
	case NodeRoot:
		return rootID
	case NodeCollection:
		return collectionPfx + string(n.Collection)
	case NodeTagGroup:
		return tagGroupPfx + n.Slug
	case NodeFilterList:
		return filterListPfx + string(n.Collection)
	case NodeFilter:
		return filterPfx + string(n.Collection) + "-" + n.ID
	case NodeEntity:
		return n.Collection.entityPrefix() + "-" + n.ID
	case NodeTagsFavorites:
		return tagsFavoritesID
	case NodeTagsAll:
		return tagsAllID
	case NodeScene:
		return scenePfx + n.ID
	}
	return ""
}

// ParseNode parses a client supplied identifier.
func ParseNode(id string) (Node, error) {
	switch id {
	case rootID:
		return Root(), nil
	case tagsFavoritesID:
		return TagsFavorites(), nil
	case tagsAllID:
		return TagsAll(), nil
	}

	invalid := fmt.Errorf("%w: %q", ErrInvalidID, id)

	if rest, ok := strings.CutPrefix(id, collectionPfx); ok {
		c := Collection(rest)
		if !c.Valid() {
			return Node{}, invalid
		}
		return CollectionRoot(c), nil
	}
	if rest, ok := strings.CutPrefix(id, tagGroupPfx); ok {
		if rest == "" || Slug(rest) != rest {
			return Node{}, invalid
		}
		return Node{Kind: NodeTagGroup, Slug: rest}, nil
	}
	if rest, ok := strings.CutPrefix(id, filterListPfx); ok {
		c := Collection(rest)
		if !c.Valid() || c == Tags {
			return Node{}, invalid
		}
		return FilterList(c), nil
	}
	if rest, ok := strings.CutPrefix(id, filterPfx); ok {
		coll, filterID, found := strings.Cut(rest, "-")
		c := Collection(coll)
		if !found || !c.Valid() || !isNumeric(filterID) {
			return Node{}, invalid
		}
		return Filter(c, filterID), nil
	}

	prefix, num, found := strings.Cut(id, "-")
	if !found || !isNumeric(num) {
		return Node{}, invalid
	}
	switch prefix {
	case "scene":
		return Scene(num), nil
	case "studio":
		return Entity(Studios, num), nil
	case "performer":
		return Entity(Performers, num), nil
	case "group":
		return Entity(Groups, num), nil
	case "tag":
		return Entity(Tags, num), nil
	}
	return Node{}, invalid
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Slug converts a display name into the lowercase dash separated form used in ids.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
