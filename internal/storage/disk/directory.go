package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/italolelis/cedric/internal/resource"
)

const (
	dirPerm = 0755

	// DefaultBaseName is the directory created under the user's download directory.
	DefaultBaseName = "Downloads"
)

// Directory is a downloads directory on the local filesystem.
type Directory struct {
	root string
	mu   sync.Mutex
}

// New returns a Directory rooted at root. The directory is created on first use.
func New(root string) *Directory {
	return &Directory{root: filepath.Clean(root)}
}

// DefaultRoot returns baseName inside the XDG user download directory.
func DefaultRoot(baseName string) string {
	if baseName == "" {
		baseName = DefaultBaseName
	}

	return filepath.Join(xdg.UserDirs.Download, baseName)
}

func (d *Directory) Root() string {
	return d.root
}

// ResolvePath joins name onto the root. Names escaping the root are rejected.
func (d *Directory) ResolvePath(name string, create bool) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("name %q is not local to the downloads directory", name)
	}

	if create {
		if err := d.ensureRoot(); err != nil {
			return "", err
		}
	}

	return filepath.Join(d.root, name), nil
}

// ensureRoot creates the root directory if it is missing. It runs on every call so a
// root removed from under us is recreated.
func (d *Directory) ensureRoot() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.root, dirPerm); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	return nil
}

func (d *Directory) Exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// Move renames from onto to, copying across filesystems when a rename is not possible.
func (d *Directory) Move(from, to string) error {
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(from, to); err != nil {
		return err
	}

	return os.Remove(from)
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(to)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(to)

		return fmt.Errorf("failed to copy file: %w", err)
	}

	return out.Close()
}

// SetAttributes applies the supported attributes to path. See the Attr* keys of the
// resource package.
func (d *Directory) SetAttributes(path string, attrs map[string]any) error {
	var mtime, atime time.Time

	for key, value := range attrs {
		switch key {
		case resource.AttrPermissions:
			mode, err := fileMode(value)
			if err != nil {
				return err
			}

			if err := os.Chmod(path, mode); err != nil {
				return err
			}
		case resource.AttrModificationDate:
			t, ok := value.(time.Time)
			if !ok {
				return fmt.Errorf("attribute %s must be a time.Time, got %T", key, value)
			}

			mtime = t
		case resource.AttrAccessDate:
			t, ok := value.(time.Time)
			if !ok {
				return fmt.Errorf("attribute %s must be a time.Time, got %T", key, value)
			}

			atime = t
		default:
			return fmt.Errorf("unsupported attribute %q", key)
		}
	}

	if mtime.IsZero() && atime.IsZero() {
		return nil
	}

	if mtime.IsZero() || atime.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if mtime.IsZero() {
			mtime = info.ModTime()
		}

		if atime.IsZero() {
			atime = mtime
		}
	}

	return os.Chtimes(path, atime, mtime)
}

func fileMode(value any) (os.FileMode, error) {
	switch v := value.(type) {
	case os.FileMode:
		return v, nil
	case int:
		return os.FileMode(v), nil
	case int64:
		return os.FileMode(v), nil
	case uint32:
		return os.FileMode(v), nil
	case string:
		n, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid permissions %q: %w", v, err)
		}

		return os.FileMode(n), nil
	default:
		return 0, fmt.Errorf("attribute %s has unsupported type %T", resource.AttrPermissions, value)
	}
}

// ListEntries returns the names directly inside the root. A missing root has no
// entries.
func (d *Directory) ListEntries() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names, nil
}

// RemoveEntry removes a file or a whole directory tree. Removing a missing path fails.
func (d *Directory) RemoveEntry(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return err
	}

	return os.RemoveAll(path)
}
