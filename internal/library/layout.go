// Package library describes the on-disk shape of a working set: which
// paths hold images, which hold derived thumbnails, and the metadata
// document that annotates them.
package library

import (
	"path"
	"path/filepath"
	"strings"
)

// Defaults for a working set layout
const (
	DefaultContentDir   = "library"
	DefaultThumbnailDir = "thumbs"
	DefaultMetadataFile = "metadata.json"
)

// Layout maps image names to repository-relative paths.
// All paths handled by Layout are slash separated and relative to Root.
type Layout struct {
	Root         string
	ContentDir   string
	ThumbnailDir string
	MetadataFile string
}

// DefaultLayout returns the standard layout rooted at root
func DefaultLayout(root string) Layout {
	return Layout{
		Root:         root,
		ContentDir:   DefaultContentDir,
		ThumbnailDir: DefaultThumbnailDir,
		MetadataFile: DefaultMetadataFile,
	}
}

// under reports whether p lies inside dir
func under(dir, p string) bool {
	dir = strings.Trim(path.Clean(dir), "/")
	return dir != "" && dir != "." && strings.HasPrefix(p, dir+"/")
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
}

// IsThumbnail reports whether p is a derived thumbnail
func (l Layout) IsThumbnail(p string) bool {
	return under(l.ThumbnailDir, clean(p))
}

// IsContent reports whether p is an image in the content directory.
// Thumbnails never count, even if the thumbnail directory is nested inside
// the content directory, and neither do dotfiles such as .gitkeep.
func (l Layout) IsContent(p string) bool {
	p = clean(p)
	if !under(l.ContentDir, p) || l.IsThumbnail(p) {
		return false
	}
	return !strings.HasPrefix(path.Base(p), ".")
}

// IsMetadata reports whether p is the metadata document
func (l Layout) IsMetadata(p string) bool {
	return clean(p) == clean(l.MetadataFile)
}

// Name returns the image name for a content path: its path below the
// content directory, which for a flat library is the base name.
func (l Layout) Name(p string) string {
	p = clean(p)
	dir := strings.Trim(path.Clean(l.ContentDir), "/") + "/"
	return strings.TrimPrefix(p, dir)
}

// ContentPath returns the repository-relative path of an image
func (l Layout) ContentPath(name string) string {
	return path.Join(l.ContentDir, name)
}

// ThumbnailPath returns the repository-relative path of an image's thumbnail
func (l Layout) ThumbnailPath(name string) string {
	return path.Join(l.ThumbnailDir, name)
}

// Abs converts a repository-relative path to an absolute filesystem path
func (l Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// MetadataAbs returns the absolute path of the metadata document
func (l Layout) MetadataAbs() string {
	return l.Abs(l.MetadataFile)
}
