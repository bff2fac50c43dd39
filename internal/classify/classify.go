// Package classify turns raw VCS change descriptors into the counts a user
// cares about: images added, modified, deleted and renamed, plus one entry
// for the metadata document when its content changed.
package classify

import (
	"sort"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/vcs"
)

// Kind is the semantic category of a change
type Kind string

const (
	KindNew      Kind = "new"
	KindModified Kind = "modified"
	KindDeleted  Kind = "deleted"
	KindRenamed  Kind = "renamed"
)

// Item is one semantic change
type Item struct {
	Kind Kind `json:"kind"`

	// Path is the repository-relative path (the new path for renames)
	Path string `json:"path"`

	// OrigPath is the previous path of a rename
	OrigPath string `json:"origPath,omitempty"`

	// Name is the image name, or the metadata file name
	Name string `json:"name"`

	// OrigName is the previous image name of a rename
	OrigName string `json:"origName,omitempty"`

	// Metadata marks the metadata document entry
	Metadata bool `json:"metadata,omitempty"`
}

// Changes is the semantic change set computed from one descriptor list
type Changes struct {
	New      int    `json:"new"`
	Modified int    `json:"modified"`
	Deleted  int    `json:"deleted"`
	Renamed  int    `json:"renamed"`
	Items    []Item `json:"items,omitempty"`
}

// Total returns the number of semantic changes
func (c Changes) Total() int {
	return c.New + c.Modified + c.Deleted + c.Renamed
}

// IsEmpty reports whether nothing semantic changed
func (c Changes) IsEmpty() bool {
	return c.Total() == 0
}

// Bucket is the externally reported shape of a change set.
// Renames are reported as modifications.
type Bucket struct {
	Count          int `json:"count"`
	NewImages      int `json:"newImages"`
	ModifiedImages int `json:"modifiedImages"`
	DeletedImages  int `json:"deletedImages"`
}

// Bucket collapses the change set into its external shape
func (c Changes) Bucket() Bucket {
	b := Bucket{
		NewImages:      c.New,
		ModifiedImages: c.Modified + c.Renamed,
		DeletedImages:  c.Deleted,
	}
	b.Count = b.NewImages + b.ModifiedImages + b.DeletedImages
	return b
}

// Classifier applies the counting rules for one working set layout
type Classifier struct {
	layout library.Layout
}

// New creates a Classifier for layout
func New(layout library.Layout) *Classifier {
	return &Classifier{layout: layout}
}

// Classify counts the semantic changes in descs.
//
// Paths listed in newPaths count as new whatever their raw status; this is
// used for file lists taken from commits rather than from the live tree.
// Items are returned sorted by path.
func (c *Classifier) Classify(descs []vcs.FileStatus, newPaths ...string) Changes {
	hinted := make(map[string]bool, len(newPaths))
	for _, p := range newPaths {
		hinted[p] = true
	}

	var out Changes
	add := func(item Item) {
		switch item.Kind {
		case KindNew:
			out.New++
		case KindModified:
			out.Modified++
		case KindDeleted:
			out.Deleted++
		case KindRenamed:
			out.Renamed++
		}
		out.Items = append(out.Items, item)
	}

	for _, d := range descs {
		status := d.Effective()

		if c.layout.IsMetadata(d.Path) {
			// Only a plain modification counts; creation and removal of the
			// document itself are bootstrap or disaster cases.
			if status == vcs.StatusModified {
				add(Item{Kind: KindModified, Path: d.Path, Name: d.Path, Metadata: true})
			}
			continue
		}

		if status == vcs.StatusRenamed {
			if item, ok := c.rename(d); ok {
				add(item)
			}
			continue
		}

		if !c.layout.IsContent(d.Path) {
			continue
		}

		item := Item{Path: d.Path, Name: c.layout.Name(d.Path)}
		switch {
		case hinted[d.Path], status == vcs.StatusAdded, status == vcs.StatusUntracked, status == vcs.StatusCopied:
			item.Kind = KindNew
		case status == vcs.StatusModified, status == vcs.StatusConflict:
			item.Kind = KindModified
		case status == vcs.StatusDeleted:
			item.Kind = KindDeleted
		default:
			continue
		}
		add(item)
	}

	sort.SliceStable(out.Items, func(i, j int) bool {
		return out.Items[i].Path < out.Items[j].Path
	})
	return out
}

// rename maps a rename to one item. Moving an image into or out of the
// content directory is an addition or a deletion respectively.
func (c *Classifier) rename(d vcs.FileStatus) (Item, bool) {
	toContent := c.layout.IsContent(d.Path)
	fromContent := d.OrigPath != "" && c.layout.IsContent(d.OrigPath)

	switch {
	case toContent && fromContent:
		return Item{
			Kind:     KindRenamed,
			Path:     d.Path,
			OrigPath: d.OrigPath,
			Name:     c.layout.Name(d.Path),
			OrigName: c.layout.Name(d.OrigPath),
		}, true
	case toContent:
		return Item{Kind: KindNew, Path: d.Path, Name: c.layout.Name(d.Path)}, true
	case fromContent:
		return Item{Kind: KindDeleted, Path: d.OrigPath, Name: c.layout.Name(d.OrigPath)}, true
	}
	return Item{}, false
}

// WithoutMetadata returns the change set minus the metadata document item.
// The orchestrator uses it when the document changed only in formatting or
// bookkeeping fields.
func (c Changes) WithoutMetadata() Changes {
	out := Changes{}
	for _, item := range c.Items {
		if item.Metadata {
			continue
		}
		out.Items = append(out.Items, item)
		switch item.Kind {
		case KindNew:
			out.New++
		case KindModified:
			out.Modified++
		case KindDeleted:
			out.Deleted++
		case KindRenamed:
			out.Renamed++
		}
	}
	return out
}
