package jellyfin

import (
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/erikbos/stashfin/catalog"
)

// /Items
// /Users/{user}/Items
//
// usersItemsHandler lists items: children of parentId, an explicit ids
// list, scenes of personIds or studioIds, or search results for searchTerm.
func (j *Jellyfin) usersItemsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page := catalog.Page{
		Offset: max(queryInt(r, "startIndex", 0), 0),
		Limit:  queryInt(r, "limit", 0),
	}
	sort := catalog.ParseSort(q.Get("sortBy"), q.Get("sortOrder"))
	parentID := q.Get("parentId")

	var (
		listing catalog.Listing
		err     error
	)
	switch {
	case len(queryList(r, "ids")) > 0:
		var nodes []catalog.Node
		for _, id := range queryList(r, "ids") {
			if node, err := catalog.ParseNode(id); err == nil {
				nodes = append(nodes, node)
			}
		}
		entries := j.catalog.LookupMany(ctx, nodes)
		listing = catalog.Listing{Entries: entries, Total: len(entries)}
		page.Offset = 0

	case q.Get("searchTerm") != "":
		people := slices.ContainsFunc(queryList(r, "includeItemTypes"), func(t string) bool {
			return strings.EqualFold(t, "Person")
		})
		listing = j.catalog.Search(ctx, q.Get("searchTerm"), people, page, sort)

	case len(queryList(r, "personIds")) > 0 || len(queryList(r, "studioIds")) > 0:
		id := firstOf(queryList(r, "personIds"), queryList(r, "studioIds"))
		node, perr := catalog.ParseNode(id)
		if perr == nil {
			listing = j.catalog.ScenesWith(ctx, node, page, sort)
		}

	case parentID != "":
		node, perr := catalog.ParseNode(parentID)
		if perr != nil {
			break
		}
		listing, err = j.catalog.ListChildren(ctx, node, page, sort)
		if err != nil {
			j.log.Debug().Err(err).Str("parent", parentID).Msg("cannot list children")
			listing = catalog.Listing{}
		}

	case isRecursiveVideoQuery(r):
		// Library sync by clients such as Infuse: all scenes, flat.
		listing = j.catalog.Search(ctx, "", false, page, sort)

	default:
		views := j.catalog.Views(ctx)
		entries := make([]catalog.Entry, 0, len(views))
		for i := range views {
			entries = append(entries, catalog.Entry{Folder: &views[i]})
		}
		listing = catalog.Listing{Entries: entries, Total: len(entries)}
		page.Offset = 0
		parentID = catalog.Root().String()
	}

	response := UserItemsResponse{
		Items:            j.makeJFItems(listing.Entries, parentID),
		StartIndex:       page.Offset,
		TotalRecordCount: listing.Total,
	}
	serveJSON(response, w)
}

func isRecursiveVideoQuery(r *http.Request) bool {
	if !strings.EqualFold(r.URL.Query().Get("recursive"), "true") {
		return false
	}
	types := queryList(r, "includeItemTypes")
	return slices.ContainsFunc(types, func(t string) bool {
		return strings.EqualFold(t, "Movie") || strings.EqualFold(t, "Video")
	})
}

func firstOf(lists ...[]string) string {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}

// /Items/{item}
// /Users/{user}/Items/{item}
//
// usersItemHandler returns details of an item
func (j *Jellyfin) usersItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["item"]
	node, ok := parseNode(w, itemID)
	if !ok {
		return
	}
	entry, err := j.catalog.Lookup(r.Context(), node)
	if err != nil {
		j.lookupFailed(w, node, err)
		return
	}
	serveJSON(j.makeJFItem(entry, parentOf(node).String()), w)
}

// /Items/Latest
// /Users/{user}/Items/Latest
//
// usersItemsLatestHandler returns the newest items of a library
func (j *Jellyfin) usersItemsLatestHandler(w http.ResponseWriter, r *http.Request) {
	parentID := r.URL.Query().Get("parentId")
	node, err := catalog.ParseNode(parentID)
	if parentID == "" || err != nil {
		serveJSON([]JFItem{}, w)
		return
	}
	entries := j.catalog.Latest(r.Context(), node, queryInt(r, "limit", 16))
	serveJSON(j.makeJFItems(entries, parentID), w)
}

// /Users/{user}/Views
// /UserViews
// /Library/MediaFolders
//
// usersViewsHandler returns the top level libraries
func (j *Jellyfin) usersViewsHandler(w http.ResponseWriter, r *http.Request) {
	views := j.catalog.Views(r.Context())
	items := make([]JFItem, 0, len(views))
	for _, v := range views {
		items = append(items, j.makeJFItemFolder(v, catalog.Root().String()))
	}
	response := UserItemsResponse{
		Items:            items,
		TotalRecordCount: len(items),
	}
	serveJSON(response, w)
}

// /Library/VirtualFolders
//
// libraryVirtualFoldersHandler returns the libraries as virtual folders
func (j *Jellyfin) libraryVirtualFoldersHandler(w http.ResponseWriter, r *http.Request) {
	views := j.catalog.Views(r.Context())
	libraries := make([]JFMediaLibrary, 0, len(views))
	for _, v := range views {
		libraries = append(libraries, JFMediaLibrary{
			Name:           v.Name,
			ItemId:         v.ID(),
			CollectionType: collectionTypeMovies,
			Locations:      []string{},
		})
	}
	serveJSON(libraries, w)
}

// /Items/{item}/Ancestors
//
// usersItemsAncestorsHandler returns the parents of an item, nearest first
func (j *Jellyfin) usersItemsAncestorsHandler(w http.ResponseWriter, r *http.Request) {
	node, ok := parseNode(w, mux.Vars(r)["item"])
	if !ok {
		return
	}
	response := []JFItem{}
	for parent := parentOf(node); ; parent = parentOf(parent) {
		entry, err := j.catalog.Lookup(r.Context(), parent)
		if err == nil {
			response = append(response, j.makeJFItem(entry, parentOf(parent).String()))
		}
		if parent.Kind == catalog.NodeRoot {
			break
		}
	}
	serveJSON(response, w)
}

// parentOf returns the folder an item is shown in. Scenes show up in many
// folders, they are attributed to the scenes library.
func parentOf(n catalog.Node) catalog.Node {
	switch n.Kind {
	case catalog.NodeScene:
		return catalog.CollectionRoot(catalog.Scenes)
	case catalog.NodeFilter:
		return catalog.FilterList(n.Collection)
	case catalog.NodeFilterList, catalog.NodeEntity:
		return catalog.CollectionRoot(n.Collection)
	case catalog.NodeTagsFavorites, catalog.NodeTagsAll:
		return catalog.CollectionRoot(catalog.Tags)
	}
	return catalog.Root()
}

// /Items/Counts
//
// usersItemsCountsHandler returns number of scenes as movie count
func (j *Jellyfin) usersItemsCountsHandler(w http.ResponseWriter, r *http.Request) {
	listing := j.catalog.Search(r.Context(), "", false, catalog.Page{Limit: 1}, catalog.ParseSort("", ""))
	response := JFItemCountResponse{
		MovieCount: listing.Total,
		ItemCount:  listing.Total,
	}
	serveJSON(response, w)
}

// /Items/Filters
//
// usersItemsFiltersHandler returns no filter values
func (j *Jellyfin) usersItemsFiltersHandler(w http.ResponseWriter, r *http.Request) {
	response := JFItemFilterResponse{
		Genres:          []string{},
		Tags:            []string{},
		OfficialRatings: []string{},
		Years:           []int{},
	}
	serveJSON(response, w)
}

// /UserItems/{item}/Userdata
// /UserPlayedItems/{item}
// /UserFavoriteItems/{item}
//
// usersItemUserDataHandler returns the user data of an item. Changes are
// not stored, the backend owns play counts and favorites.
func (j *Jellyfin) usersItemUserDataHandler(w http.ResponseWriter, r *http.Request) {
	node, ok := parseNode(w, mux.Vars(r)["item"])
	if !ok {
		return
	}
	entry, err := j.catalog.Lookup(r.Context(), node)
	if err != nil {
		j.lookupFailed(w, node, err)
		return
	}
	serveJSON(j.makeJFItem(entry, "").UserData, w)
}

// /Search/Hints?searchTerm=
//
// searchHintsHandler returns matching scenes and performers
func (j *Jellyfin) searchHintsHandler(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("searchTerm")
	response := SearchHintsResponse{SearchHints: []SearchHint{}}
	if term == "" {
		serveJSON(response, w)
		return
	}
	page := catalog.Page{
		Offset: max(queryInt(r, "startIndex", 0), 0),
		Limit:  queryInt(r, "limit", 20),
	}
	sort := catalog.ParseSort("", "")
	for _, people := range []bool{false, true} {
		listing := j.catalog.Search(r.Context(), term, people, page, sort)
		for _, e := range listing.Entries {
			response.SearchHints = append(response.SearchHints, makeSearchHint(j.makeJFItem(e, "")))
		}
		response.TotalRecordCount += listing.Total
	}
	serveJSON(response, w)
}

func makeSearchHint(i JFItem) SearchHint {
	hint := SearchHint{
		ItemId:                  i.ID,
		Id:                      i.ID,
		Name:                    i.Name,
		Type:                    i.Type,
		MediaType:               i.MediaType,
		IsFolder:                i.IsFolder,
		RunTimeTicks:            i.RunTimeTicks,
		ProductionYear:          i.ProductionYear,
		PrimaryImageAspectRatio: i.PrimaryImageAspectRatio,
	}
	if i.ImageTags != nil {
		hint.PrimaryImageTag = i.ImageTags.Primary
	}
	return hint
}

// /Items/{item}/PlaybackInfo
//
// itemsPlaybackInfoHandler returns the direct play source of a scene
func (j *Jellyfin) itemsPlaybackInfoHandler(w http.ResponseWriter, r *http.Request) {
	node, ok := parseNode(w, mux.Vars(r)["item"])
	if !ok {
		return
	}
	if node.Kind != catalog.NodeScene {
		apierror(w, "item is not playable", http.StatusNotFound)
		return
	}
	m, err := j.catalog.Scene(r.Context(), node.ID)
	if err != nil {
		j.lookupFailed(w, node, err)
		return
	}
	response := JFPlaybackInfoResponse{
		MediaSources:  []JFMediaSources{makeMediaSource(*m)},
		PlaySessionID: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	serveJSON(response, w)
}
