package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxDepth bounds how deep the chunker descends into nested values.
const DefaultMaxDepth = 64

// Chunk is one addressable string leaf of a stored payload.
type Chunk struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// ChunkOptions tunes Chunks.
type ChunkOptions struct {
	MaxDepth int
}

// Chunks flattens a JSON-shaped value (map[string]any, []any, scalars)
// into its string leaves. Map keys are visited in sorted order, sequence
// elements by index, so the result is deterministic. Leaves below MaxDepth
// and non-string scalars are not chunked.
func Chunks(value any, opts ChunkOptions) []Chunk {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var out []Chunk
	var walk func(v any, path string, depth int)
	walk = func(v any, path string, depth int) {
		if depth > maxDepth {
			return
		}
		switch t := v.(type) {
		case string:
			out = append(out, Chunk{Path: path, Text: t})
		case map[string]any:
			for _, k := range sortedKeys(t) {
				walk(t[k], joinPath(path, k), depth+1)
			}
		case []any:
			for i, item := range t {
				walk(item, joinPath(path, strconv.Itoa(i)), depth+1)
			}
		}
	}
	walk(value, "", 0)
	return out
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─── Field lookup ───────────────────────────────────────────────────────────

// lookupPath resolves a dot path against root. Map segments select keys;
// sequence segments must be in-range non-negative integers. Map keys may
// themselves contain dots, so a segment that misses is retried joined with
// the segments after it. The empty path selects the root, or the value
// under the empty key when the root is a map that has one, since that is
// the path such a value is chunked under.
func lookupPath(root any, path string) (any, bool) {
	if path == "" {
		if m, ok := root.(map[string]any); ok {
			if v, ok := m[""]; ok {
				return v, true
			}
		}
		return root, true
	}
	return resolveSegments(root, strings.Split(path, "."))
}

func resolveSegments(cur any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return cur, true
	}
	switch t := cur.(type) {
	case map[string]any:
		for n := 1; n <= len(segs); n++ {
			v, ok := t[strings.Join(segs[:n], ".")]
			if !ok {
				continue
			}
			if found, ok := resolveSegments(v, segs[n:]); ok {
				return found, true
			}
		}
		return nil, false
	case []any:
		seg := segs[0]
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(t) || seg != strconv.Itoa(i) {
			return nil, false
		}
		return resolveSegments(t[i], segs[1:])
	}
	return nil, false
}

// AvailableKeys lists what can be addressed below v: sorted map keys or
// sequence indices, at most limit of them. Scalars have none.
func AvailableKeys(v any, limit int) []string {
	var keys []string
	switch t := v.(type) {
	case map[string]any:
		keys = sortedKeys(t)
	case []any:
		keys = make([]string, len(t))
		for i := range t {
			keys[i] = strconv.Itoa(i)
		}
	default:
		return nil
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// ParentPath returns the path one segment up, or "" at the root.
func ParentPath(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[:i]
	}
	return ""
}

// ─── Normalisation ──────────────────────────────────────────────────────────

// normalize deep-copies v into plain JSON shapes through an encode/decode
// round trip. Numbers decode as json.Number so numerals survive unchanged.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
