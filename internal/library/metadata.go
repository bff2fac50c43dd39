package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ImagesKey is the top-level object keyed by image name
const ImagesKey = "images"

// bookkeeping fields change on every save and never describe an edit
var bookkeeping = map[string]bool{
	"updated":       true,
	"updatedAt":     true,
	"updated_at":    true,
	"lastModified":  true,
	"last_modified": true,
	"modifiedAt":    true,
	"syncedAt":      true,
}

// IsBookkeeping reports whether a metadata property is a timestamp the
// application maintains on its own.
func IsBookkeeping(key string) bool {
	return bookkeeping[key]
}

// EntryPath returns the gjson/sjson path of an image's metadata entry
func EntryPath(name string) string {
	return ImagesKey + "." + gjson.Escape(name)
}

// ReadMetadata returns the metadata document, or nil if it does not exist
func (l Layout) ReadMetadata() ([]byte, error) {
	data, err := os.ReadFile(l.MetadataAbs())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return data, nil
}

// WriteMetadata replaces the metadata document atomically
func (l Layout) WriteMetadata(doc []byte) error {
	target := l.MetadataAbs()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ValidateMetadata checks that doc is JSON whose images member, if
// present, is an object.
func ValidateMetadata(doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return errors.New("metadata is not valid JSON")
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return errors.New("metadata root is not an object")
	}
	if images := root.Get(ImagesKey); images.Exists() && !images.IsObject() {
		return fmt.Errorf("metadata %q is not an object", ImagesKey)
	}
	return nil
}

// Images returns each image entry by name. Invalid or empty documents
// yield an empty map.
func Images(doc []byte) map[string]gjson.Result {
	out := map[string]gjson.Result{}
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		return out
	}

	gjson.GetBytes(doc, ImagesKey).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value
		return true
	})
	return out
}

// SortedNames returns the keys of an Images map in order
func SortedNames(images map[string]gjson.Result) []string {
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteEntry removes an image's entry, leaving the rest of the document
// byte-for-byte intact. Deleting a missing entry is a no-op.
func DeleteEntry(doc []byte, name string) ([]byte, error) {
	if len(doc) == 0 || !gjson.GetBytes(doc, EntryPath(name)).Exists() {
		return doc, nil
	}

	out, err := sjson.DeleteBytes(doc, EntryPath(name))
	if err != nil {
		return nil, fmt.Errorf("delete metadata entry %s: %w", name, err)
	}
	return out, nil
}

// RenameEntry moves an image's entry to a new key. A missing entry is a
// no-op; an existing entry under the new name is an error.
func RenameEntry(doc []byte, from, to string) ([]byte, error) {
	entry := gjson.GetBytes(doc, EntryPath(from))
	if !entry.Exists() {
		return doc, nil
	}
	if gjson.GetBytes(doc, EntryPath(to)).Exists() {
		return nil, fmt.Errorf("metadata entry %s already exists", to)
	}

	out, err := sjson.SetRawBytes(doc, EntryPath(to), []byte(entry.Raw))
	if err != nil {
		return nil, fmt.Errorf("rename metadata entry %s: %w", from, err)
	}
	return DeleteEntry(out, from)
}
