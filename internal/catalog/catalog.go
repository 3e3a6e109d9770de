package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrNotFound means the requested category or subcategory directory does
// not exist. An existing-but-empty directory is not an error.
var ErrNotFound = errors.New("catalog: category not found")

// Service lists item identifiers out of a directory tree of image assets.
// Each category is a directory under root; identifiers are filenames.
type Service struct {
	root string
	log  *zap.Logger
}

func New(root string, log *zap.Logger) *Service {
	return &Service{root: root, log: log}
}

// List returns the identifiers in a category, hidden entries excluded.
func (s *Service) List(category string) ([]string, error) {
	return s.list(category)
}

// ListSub returns the identifiers in a category subfolder. Used for
// character-scoped modifiers and rarity-scoped consumables.
func (s *Service) ListSub(category, sub string) ([]string, error) {
	return s.list(category, sub)
}

func (s *Service) list(parts ...string) ([]string, error) {
	for _, p := range parts {
		if !safeName(p) {
			return nil, ErrNotFound
		}
	}

	dir := filepath.Join(append([]string{s.root}, parts...)...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	s.log.Debug("catalog listed",
		zap.Strings("path", parts),
		zap.Int("count", len(names)))
	return names, nil
}

// safeName rejects path segments that could escape the asset root.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// FilterExt keeps only identifiers with the given extension. The consumable
// rarity folders mix source files in with the icons, so their listing is
// narrowed to .png.
func FilterExt(names []string, ext string) []string {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasSuffix(n, ext) {
			kept = append(kept, n)
		}
	}
	return kept
}
