// Package commitmsg writes human-readable commit messages for a sync.
//
// A message is a list of clauses joined by " -- ": one per file operation
// (added, renamed, deleted, modified image) followed by one per image whose
// metadata changed in a way a person would care about.
package commitmsg

import (
	"fmt"
	"strings"

	"github.com/framesync/framesync/internal/classify"
	"github.com/framesync/framesync/internal/library"
)

// Separator joins clauses
const Separator = " -- "

// Input is everything a message is composed from
type Input struct {
	// Items are the semantic changes being committed
	Items []classify.Item

	// MetadataBefore is the metadata document at HEAD, nil if absent
	MetadataBefore []byte

	// MetadataAfter is the working copy of the metadata document
	MetadataAfter []byte

	// FileCount is the number of raw paths being committed, used by the
	// fallback message
	FileCount int
}

// Compose returns the commit message for in
func Compose(in Input) string {
	clauses := Clauses(in)
	if len(clauses) == 0 {
		return Fallback(in.FileCount)
	}
	return strings.Join(clauses, Separator)
}

// Clauses returns the file operation clauses followed by the metadata
// clauses, without the fallback.
func Clauses(in Input) []string {
	return append(Describe(in.Items), metadataClauses(in)...)
}

// Fallback is the message used when nothing semantic changed
func Fallback(files int) string {
	return fmt.Sprintf("sync: update library (%d file(s))", files)
}

// Describe renders the file operations in items, one clause each, in item
// order. The metadata document item is skipped.
func Describe(items []classify.Item) []string {
	var out []string
	for _, item := range items {
		if item.Metadata {
			continue
		}
		switch item.Kind {
		case classify.KindNew:
			out = append(out, "added: "+item.Name)
		case classify.KindRenamed:
			out = append(out, fmt.Sprintf("renamed: %s → %s", item.OrigName, item.Name))
		case classify.KindDeleted:
			out = append(out, "deleted: "+item.Name)
		case classify.KindModified:
			out = append(out, "modified: "+item.Name)
		}
	}
	return out
}

// MetadataChanged reports whether the metadata document differs in any
// way a clause would describe.
func MetadataChanged(before, after []byte) bool {
	return len(library.DiffMetadata(before, after)) > 0
}

func metadataClauses(in Input) []string {
	added := map[string]bool{}
	deleted := map[string]bool{}
	renamedTo := map[string]string{}
	renamedFrom := map[string]bool{}
	for _, item := range in.Items {
		switch item.Kind {
		case classify.KindNew:
			added[item.Name] = true
		case classify.KindDeleted:
			deleted[item.Name] = true
		case classify.KindRenamed:
			renamedTo[item.Name] = item.OrigName
			renamedFrom[item.OrigName] = true
		}
	}

	before := library.Images(in.MetadataBefore)
	after := library.Images(in.MetadataAfter)

	var out []string
	for _, c := range library.DiffMetadata(in.MetadataBefore, in.MetadataAfter) {
		switch {
		case c.Added && added[c.Name], c.Removed && deleted[c.Name]:
			// the file operation already says it
			continue
		case c.Removed && renamedFrom[c.Name]:
			continue
		case c.Added && renamedTo[c.Name] != "":
			// compare the entry with its pre-rename self
			orig := renamedTo[c.Name]
			if _, ok := before[orig]; ok {
				c = library.DiffEntry(c.Name, before[orig], after[c.Name])
				if c.IsEmpty() {
					continue
				}
			}
		}
		out = append(out, clause(c))
	}
	return out
}

func clause(c library.EntryChange) string {
	if c.Removed {
		return c.Name + ": removed metadata"
	}

	var parts []string
	if len(c.AddedTags) > 0 {
		parts = append(parts, "added tag(s): "+strings.Join(c.AddedTags, ", "))
	}
	if len(c.RemovedTags) > 0 {
		parts = append(parts, "removed tag(s): "+strings.Join(c.RemovedTags, ", "))
	}
	if len(c.Updated) > 0 {
		parts = append(parts, "updated "+strings.Join(c.Updated, ", "))
	}
	if len(parts) == 0 {
		return c.Name + ": added metadata"
	}
	return c.Name + ": " + strings.Join(parts, " / ")
}
