// Package media defines the media file store the backup subsystem snapshots
// from and restores into. Files are grouped under named collections
// (directories).
package media

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File identifies one media file inside a collection.
type File struct {
	Collection string
	Name       string
}

// Path returns the collection-relative path of the file.
func (f File) Path() string {
	return f.Collection + "/" + f.Name
}

// Source is the host application's media file store.
type Source interface {
	// List returns every media file, ordered by collection then name.
	List() ([]File, error)

	// Read returns the file's contents.
	Read(f File) ([]byte, error)

	// Write stores the file's contents, creating the collection if needed.
	Write(f File, data []byte) error

	// Exists reports whether the file is present.
	Exists(f File) (bool, error)
}

// DirSource is a Source over a local directory tree: one subdirectory per
// collection.
type DirSource struct {
	root string
}

// NewDirSource creates a directory-backed media source rooted at root.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// List returns every media file, ordered by collection then name.
func (d *DirSource) List() ([]File, error) {
	var files []File

	if _, err := os.Stat(d.root); os.IsNotExist(err) {
		return files, nil
	}

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		parts := strings.SplitN(rel, "/", 2)
		if len(parts) != 2 {
			// Files directly in the root belong to no collection; skip.
			return nil
		}

		files = append(files, File{Collection: parts[0], Name: parts[1]})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk media directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Collection != files[j].Collection {
			return files[i].Collection < files[j].Collection
		}
		return files[i].Name < files[j].Name
	})

	return files, nil
}

// Read returns the file's contents.
func (d *DirSource) Read(f File) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, f.Collection, filepath.FromSlash(f.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read media file %s: %w", f.Path(), err)
	}
	return data, nil
}

// Write stores the file's contents, creating the collection if needed.
func (d *DirSource) Write(f File, data []byte) error {
	path := filepath.Join(d.root, f.Collection, filepath.FromSlash(f.Name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create media collection directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write media file %s: %w", f.Path(), err)
	}
	return nil
}

// Exists reports whether the file is present.
func (d *DirSource) Exists(f File) (bool, error) {
	_, err := os.Stat(filepath.Join(d.root, f.Collection, filepath.FromSlash(f.Name)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
