package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/framesync/framesync/internal/library"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileType says which part of the working set changed.
type FileType int

const (
	// TypeImage is a file in the content directory.
	TypeImage FileType = iota
	// TypeMetadata is the metadata document.
	TypeMetadata
)

// String returns a human-readable representation of the file type.
func (ft FileType) String() string {
	switch ft {
	case TypeImage:
		return "image"
	case TypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// FileEvent is a change to an image or to the metadata document.
type FileEvent struct {
	// Path is the absolute path of the file that changed.
	Path string
	// Rel is Path relative to the working set root, slash separated.
	Rel string
	Type FileType
	Op   EventOp
}

// FileWatcher watches the content directory (recursively) and the metadata
// document of a working set. Thumbnails, dotfiles and everything else in
// the working set root are ignored.
type FileWatcher struct {
	layout  library.Layout
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewFileWatcher creates a FileWatcher for layout.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher(layout library.Layout) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		layout:  layout,
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The working set root is watched for the metadata
// document, which editors tend to replace rather than rewrite in place.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	root := fw.layout.Root
	if err := fw.watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch working set root %s: %w", root, err)
	}

	contentDir := fw.layout.Abs(fw.layout.ContentDir)
	if err := fw.addTree(contentDir); err != nil {
		fw.watcher.Remove(root)
		return fmt.Errorf("failed to watch content directory %s: %w", contentDir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// addTree watches dir and every directory below it except thumbnails
func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && (strings.HasPrefix(d.Name(), ".") || fw.isThumbnailDir(fw.rel(p))) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(p)
	})
}

// Stop stops watching for file system events and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	// Closing the underlying watcher unblocks the event loop
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			for _, fileEvent := range fw.convertEvent(event) {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to zero or more FileEvents. A
// directory created inside the content directory is watched from then on,
// and the files already in it are reported as created since they may have
// been written before the watch was added.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) []FileEvent {
	rel := fw.rel(event.Name)

	if event.Has(fsnotify.Create) && fw.layout.IsContent(rel) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return fw.addCreatedDir(event.Name)
		}
	}

	fileType, ok := fw.determineFileType(rel)
	if !ok {
		return nil
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// The new name triggers a separate create
		op = OpDelete
	default:
		// chmod and friends
		return nil
	}

	return []FileEvent{{Path: event.Name, Rel: rel, Type: fileType, Op: op}}
}

func (fw *FileWatcher) addCreatedDir(dir string) []FileEvent {
	if err := fw.addTree(dir); err != nil {
		select {
		case fw.errors <- fmt.Errorf("failed to watch %s: %w", dir, err):
		default:
		}
		return nil
	}

	var created []FileEvent
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel := fw.rel(p); fw.layout.IsContent(rel) {
			created = append(created, FileEvent{Path: p, Rel: rel, Type: TypeImage, Op: OpCreate})
		}
		return nil
	})
	return created
}

// determineFileType classifies a working-set-relative path.
func (fw *FileWatcher) determineFileType(rel string) (FileType, bool) {
	switch {
	case fw.layout.IsMetadata(rel):
		return TypeMetadata, true
	case fw.layout.IsContent(rel):
		return TypeImage, true
	}
	return 0, false
}

func (fw *FileWatcher) isThumbnailDir(rel string) bool {
	return rel == strings.Trim(path.Clean(fw.layout.ThumbnailDir), "/") || fw.layout.IsThumbnail(rel)
}

// rel returns p relative to the working set root, slash separated
func (fw *FileWatcher) rel(p string) string {
	r, err := filepath.Rel(fw.layout.Root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
