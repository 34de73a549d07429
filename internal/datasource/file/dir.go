package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"catalogindex/internal/datasource"
)

// Dir lists the regular files of one directory that carry a given
// extension. Symlinks are followed to their target. Subdirectories are not
// descended into.
type Dir struct {
	path string
	ext  string
}

// NewDir returns a Dir lister. An empty ext matches every file.
func NewDir(path, ext string) *Dir { return &Dir{path: path, ext: ext} }

// Location returns the directory path.
func (d *Dir) Location() string { return d.path }

// List returns matching files sorted by name.
func (d *Dir) List(ctx context.Context) ([]datasource.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	des, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.path, err)
	}
	out := make([]datasource.Entry, 0, len(des))
	for _, de := range des {
		if !strings.HasSuffix(de.Name(), d.ext) {
			continue
		}
		mode := de.Type()
		if !mode.IsRegular() && mode&fs.ModeSymlink == 0 {
			continue
		}
		// os.Stat follows symlinks; a dangling link fails here.
		info, err := os.Stat(filepath.Join(d.path, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", filepath.Join(d.path, de.Name()), err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, datasource.Entry{Name: de.Name(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open opens one listed file.
func (d *Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("open %q: not a file name in %s", name, d.path)
	}
	return NewLocal(filepath.Join(d.path, name)).Open(ctx)
}
