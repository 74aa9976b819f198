package criteria

import (
	"math"
	"strconv"
	"strings"

	"github.com/erikbos/stashfin/stash"
)

// dateFields keep their range bounds as given.
var dateFields = map[string]bool{
	"date": true, "birthdate": true, "death_date": true, "created_at": true,
	"updated_at": true, "last_played_at": true, "scene_date": true,
	"scene_created_at": true, "scene_updated_at": true,
}

// numericFields get their operands coerced to integers.
var numericFields = map[string]bool{
	"duration": true, "rating100": true, "o_counter": true, "play_count": true,
	"play_duration": true, "resume_time": true, "framerate": true, "bitrate": true,
	"file_count": true, "tag_count": true, "performer_count": true, "performer_age": true,
	"scene_count": true, "image_count": true, "gallery_count": true, "marker_count": true,
	"studio_count": true, "group_count": true, "height_cm": true, "weight": true,
	"age": true, "interactive_speed": true, "id": true, "penis_length": true,
	"child_count": true, "parent_count": true, "sub_group_count": true,
	"containing_group_count": true,
}

// booleanFields are plain Boolean inputs in the query schema per mode.
var booleanFields = map[stash.FilterMode]map[string]bool{
	stash.ModeScenes:     {"organized": true, "interactive": true, "performer_favorite": true},
	stash.ModePerformers: {"filter_favorites": true, "ignore_auto_tag": true, "favorite": true},
	stash.ModeStudios:    {"ignore_auto_tag": true, "favorite": true},
	stash.ModeTags:       {"ignore_auto_tag": true, "favorite": true},
	stash.ModeGroups:     {},
}

// Translate converts tree into the filter input of the find query for mode.
// Combinators whose nested result is empty are dropped.
func Translate(tree Tree, mode stash.FilterMode) map[string]any {
	out := make(map[string]any, len(tree))
	for _, c := range tree {
		if v, ok := c.translate(mode); ok {
			out[c.Field] = v
		}
	}
	return out
}

// TranslateJSON parses and translates a raw object_filter document.
func TranslateJSON(b []byte, mode stash.FilterMode) (map[string]any, error) {
	tree, err := ParseJSON(b)
	if err != nil {
		return nil, err
	}
	return Translate(tree, mode), nil
}

func (c Criterion) translate(mode stash.FilterMode) (any, bool) {
	switch c.Kind {
	case Combinator:
		nested := Translate(c.Children, mode)
		if len(nested) == 0 {
			return nil, false
		}
		return nested, true

	case Scalar, Missing:
		return c.Value, true

	case Existence:
		// the schema requires a value even when it is meaningless
		return map[string]any{"value": "", "modifier": c.Modifier}, true

	case Range:
		return map[string]any{
			"value":    c.rangeBound(c.Value),
			"value2":   c.rangeBound(c.Value2),
			"modifier": c.Modifier,
		}, true

	case Comparison:
		v := coerceBool(c.Value)
		if numericFields[c.Field] {
			v = coerceInt(v)
		}
		if booleanFields[mode][c.Field] {
			if b, ok := v.(bool); ok {
				return b, true
			}
		}
		return map[string]any{"value": v, "modifier": c.Modifier}, true

	case Hierarchical:
		out := map[string]any{
			"value":    nonNil(c.Items),
			"modifier": c.Modifier,
		}
		if c.Excluded != nil {
			out["excludes"] = c.Excluded
		}
		if c.Depth != nil {
			out["depth"] = *c.Depth
		}
		return out, true
	}
	return nil, false
}

func (c Criterion) rangeBound(v any) any {
	if dateFields[c.Field] {
		return v
	}
	return coerceInt(v)
}

// coerceBool turns "true" and "false" into booleans.
func coerceBool(v any) any {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v
}

// coerceInt turns integral floats and numeric strings into ints.
func coerceInt(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < math.MaxInt64 {
			return int(n)
		}
		return n
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(math.Round(f))
		}
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
