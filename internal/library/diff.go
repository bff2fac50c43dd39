package library

import (
	"reflect"
	"sort"

	"github.com/tidwall/gjson"
)

// TagsKey is the entry property holding an image's tag list
const TagsKey = "tags"

// EntryChange describes how one image's metadata entry differs between two
// versions of the document.
type EntryChange struct {
	Name string

	// Added and Removed mark entries that exist on only one side
	Added   bool
	Removed bool

	AddedTags   []string
	RemovedTags []string

	// Updated lists non-bookkeeping properties whose value changed,
	// appeared or disappeared
	Updated []string
}

// IsEmpty reports whether the entry changed in any way that matters
func (c EntryChange) IsEmpty() bool {
	return !c.Added && !c.Removed && len(c.AddedTags) == 0 && len(c.RemovedTags) == 0 && len(c.Updated) == 0
}

// DiffMetadata compares two metadata documents entry by entry and returns
// the entries that changed, sorted by name. Values are compared
// structurally, so whitespace and key order are irrelevant, and bookkeeping
// timestamps are ignored. Either side may be nil.
func DiffMetadata(before, after []byte) []EntryChange {
	old := Images(before)
	cur := Images(after)

	names := map[string]bool{}
	for name := range old {
		names[name] = true
	}
	for name := range cur {
		names[name] = true
	}

	var out []EntryChange
	for name := range names {
		prev, hadPrev := old[name]
		next, hasNext := cur[name]

		var c EntryChange
		switch {
		case !hadPrev:
			c = DiffEntry(name, gjson.Result{}, next)
			c.Added = true
		case !hasNext:
			c = EntryChange{Name: name, Removed: true}
		default:
			c = DiffEntry(name, prev, next)
		}
		if !c.IsEmpty() {
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DiffEntry compares two versions of a single entry. A missing side is
// treated as an empty object.
func DiffEntry(name string, before, after gjson.Result) EntryChange {
	c := EntryChange{Name: name}

	prevTags, prevIsList := tagList(before)
	nextTags, nextIsList := tagList(after)
	c.AddedTags = subtract(nextTags, prevTags)
	c.RemovedTags = subtract(prevTags, nextTags)

	props := map[string]bool{}
	collect := func(entry gjson.Result) {
		entry.ForEach(func(key, _ gjson.Result) bool {
			props[key.String()] = true
			return true
		})
	}
	collect(before)
	collect(after)

	for prop := range props {
		if IsBookkeeping(prop) {
			continue
		}
		// A tag list is reported tag by tag; anything else under the tags
		// key is an ordinary property.
		if prop == TagsKey && listOrMissing(before, prevIsList) && listOrMissing(after, nextIsList) {
			continue
		}
		if !sameValue(before.Get(gjson.Escape(prop)), after.Get(gjson.Escape(prop))) {
			c.Updated = append(c.Updated, prop)
		}
	}
	sort.Strings(c.Updated)
	return c
}

// tagList returns the string tags of an entry and whether the entry holds
// a tag array at all.
func tagList(entry gjson.Result) ([]string, bool) {
	tags := entry.Get(TagsKey)
	if !tags.IsArray() {
		return nil, false
	}
	var out []string
	for _, t := range tags.Array() {
		out = append(out, t.String())
	}
	return out, true
}

func listOrMissing(entry gjson.Result, isList bool) bool {
	return isList || !entry.Get(TagsKey).Exists()
}

// subtract returns the members of a missing from b, in a's order
func subtract(a, b []string) []string {
	seen := make(map[string]bool, len(b))
	for _, s := range b {
		seen[s] = true
	}
	var out []string
	for _, s := range a {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}

func sameValue(a, b gjson.Result) bool {
	if a.Exists() != b.Exists() {
		return false
	}
	return reflect.DeepEqual(a.Value(), b.Value())
}
