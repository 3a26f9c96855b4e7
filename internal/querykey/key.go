package querykey

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Key identifies one cached remote resource as an ordered sequence of segments.
// Keys form a prefix lattice: a key is a descendant of every proper prefix of
// itself, and invalidating a prefix invalidates all of its cached descendants.
//
// All code that reads or invalidates a resource must build its keys through
// this package. Hand-rolled key slices elsewhere fork the cache.
type Key struct {
	segments []string
}

// Params holds filter/pagination parameters embedded in a key segment.
type Params map[string]any

// Segments are joined with an unprintable separator so that canonical forms of
// distinct keys can never collide.
const separator = "\x1f"

// For builds the key for a resource, optionally narrowed by an id and
// sub-resource segments. Empty segments are programmer errors.
func For(resource string, segments ...string) Key {
	if resource == "" {
		panic("querykey: empty resource")
	}
	segs := make([]string, 0, len(segments)+1)
	segs = append(segs, resource)
	for _, segment := range segments {
		if segment == "" {
			panic(fmt.Sprintf("querykey: empty segment in key for %q", resource))
		}
		segs = append(segs, segment)
	}
	return Key{segments: segs}
}

// Paginated builds the key for a paginated listing of a resource. Params are
// canonicalized, so equivalent parameter sets produce equal keys regardless of
// the order the caller assembled them in.
func Paginated(resource string, params Params) Key {
	return For(resource, "paginated", Canonicalize(params))
}

// PageAggregate builds the single key for one page-aggregate (BFF) response.
// The aggregate is one fetch with one key, never decomposed.
func PageAggregate(view string, params Params) Key {
	return For("pages", view, Canonicalize(params))
}

// Canonicalize serializes params with object keys sorted. Unserializable
// params are programmer errors and panic.
func Canonicalize(params Params) string {
	if params == nil {
		params = Params{}
	}
	// encoding/json sorts map keys at every level
	blob, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("querykey: params are not serializable: %v", err))
	}
	return string(blob)
}

func (k Key) Segments() []string {
	return slices.Clone(k.segments)
}

// Canonical returns a string form usable as a map index. Two keys are equal
// iff their canonical forms are equal.
func (k Key) Canonical() string {
	return strings.Join(k.segments, separator)
}

func (k Key) Equal(other Key) bool {
	return slices.Equal(k.segments, other.segments)
}

// HasPrefix reports whether prefix is a (not necessarily proper) prefix of k.
// This is the descendant test used for invalidation cascades.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.segments) > len(k.segments) {
		return false
	}
	return slices.Equal(k.segments[:len(prefix.segments)], prefix.segments)
}

func (k Key) IsZero() bool {
	return len(k.segments) == 0
}

func (k Key) String() string {
	return strings.Join(k.segments, "/")
}
