package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"regrag/internal/domain"
)

// FilesystemSource exposes a directory of documents as an object source.
// Include and exclude glob patterns are matched against paths relative
// to the root.
type FilesystemSource struct {
	root     string
	includes []string
	excludes []string
}

func NewFilesystemSource(root string, includes, excludes []string) *FilesystemSource {
	return &FilesystemSource{
		root:     root,
		includes: includes,
		excludes: excludes,
	}
}

func (s *FilesystemSource) List() ([]domain.ObjectInfo, error) {
	var objects []domain.ObjectInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !s.matches(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, domain.ObjectInfo{
			Name:      rel,
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	return objects, nil
}

func (s *FilesystemSource) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (s *FilesystemSource) matches(rel string) bool {
	for _, pattern := range s.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	if len(s.includes) == 0 {
		return true
	}
	for _, pattern := range s.includes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
