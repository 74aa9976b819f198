// Package muxnormalizer rewrites request paths and query parameter names so
// clients deviating from the Jellyfin API casing still match the routes.
//
// E.g. /emby/users/1/items?ParentId=root-scenes becomes
// /Users/1/Items?parentId=root-scenes.
package muxnormalizer

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// Normalizer holds the casing index of all registered routes.
type Normalizer struct {
	bySegmentCount map[int][]routeTemplate
	// prefixes are stripped from request paths before matching, e.g. /emby.
	prefixes []string
}

type routeTemplate struct {
	staticPos map[int]string
}

// New indexes the static path segments of every route registered on r.
func New(r *mux.Router, prefixes ...string) (*Normalizer, error) {
	n := &Normalizer{
		bySegmentCount: make(map[int][]routeTemplate),
		prefixes:       prefixes,
	}

	err := r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		template, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		staticPos := make(map[int]string)
		segments := splitPath(template)
		for i, part := range segments {
			if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
				continue
			}
			staticPos[i] = part
		}
		n.bySegmentCount[len(segments)] = append(n.bySegmentCount[len(segments)], routeTemplate{staticPos: staticPos})
		return nil
	})
	return n, err
}

// Middleware normalizes path and query before calling next.
func (n *Normalizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = n.normalizePath(n.cleanPath(r.URL.Path))
		r.URL.RawPath = ""
		if r.URL.RawQuery != "" {
			r.URL.RawQuery = normalizeQueryParameters(r.URL.RawQuery)
		}
		next.ServeHTTP(w, r)
	})
}

// cleanPath strips known prefixes, duplicate slashes and a trailing slash.
func (n *Normalizer) cleanPath(path string) string {
	for _, prefix := range n.prefixes {
		if len(path) > len(prefix) && strings.EqualFold(path[:len(prefix)+1], prefix+"/") {
			path = path[len(prefix):]
			break
		}
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// normalizePath rewrites the casing of static segments to the first
// route template matching case-insensitively.
func (n *Normalizer) normalizePath(path string) string {
	segments := splitPath(path)
	for _, tpl := range n.bySegmentCount[len(segments)] {
		match := true
		for i, seg := range segments {
			if canonical, ok := tpl.staticPos[i]; ok && !strings.EqualFold(seg, canonical) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		for i := range segments {
			if canonical, ok := tpl.staticPos[i]; ok {
				segments[i] = canonical
			}
		}
		return "/" + strings.Join(segments, "/")
	}
	return path
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// normalizeQueryParameters renames parameters to their canonical casing
// and drops the ones no handler reads.
func normalizeQueryParameters(rawQuery string) string {
	params, _ := url.ParseQuery(rawQuery)
	normalized := url.Values{}
	for name, values := range params {
		k := strings.ToLower(name)
		if _, remove := removeParams[k]; remove {
			continue
		}
		if canonical, ok := queryParameters[k]; ok {
			name = canonical
		}
		for _, v := range values {
			normalized.Add(name, v)
		}
	}
	return normalized.Encode()
}

// queryParameters maps lowercased names to the names handlers read.
var queryParameters = map[string]string{
	"api_key":          "api_key",
	"apikey":           "api_key",
	"enableimages":     "enableImages",
	"fillheight":       "fillHeight",
	"fillwidth":        "fillWidth",
	"filters":          "filters",
	"ids":              "ids",
	"includeitemtypes": "includeItemTypes",
	"isfavorite":       "isFavorite",
	"limit":            "limit",
	"maxheight":        "maxHeight",
	"maxwidth":         "maxWidth",
	"mediasourceid":    "mediaSourceId",
	"parentid":         "parentId",
	"personids":        "personIds",
	"playsessionid":    "playSessionId",
	"quality":          "quality",
	"recursive":        "recursive",
	"searchterm":       "searchTerm",
	"sortby":           "sortBy",
	"sortorder":        "sortOrder",
	"startindex":       "startIndex",
	"static":           "static",
	"studioids":        "studioIds",
	"tag":              "tag",
	"userid":           "userId",
}

var removeParams = map[string]struct{}{
	// full items are always returned
	"fields":           {},
	"enableimagetypes": {},
}
