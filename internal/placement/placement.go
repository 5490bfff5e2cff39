package placement

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/storage"
	"github.com/italolelis/cedric/internal/transfer"
)

// Resolver decides where finished transfers land in the downloads directory.
type Resolver struct {
	dir storage.Directory
}

func NewResolver(dir storage.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Directory returns the downloads directory the resolver places files into.
func (r *Resolver) Directory() storage.Directory {
	return r.dir
}

// ResolveDestination returns the absolute path a resource should be placed at.
//
// With ModeReuseIfExists the path is always root/name. With ModeNewFile a taken
// name is suffixed as stem(1).ext, stem(2).ext and so on until a free path is found.
// Probing checks the filesystem at call time only: two concurrent resolutions of the
// same name may pick the same path. Callers must not enqueue identical names in
// ModeNewFile concurrently without coordinating.
func (r *Resolver) ResolveDestination(res resource.Resource) (string, error) {
	base, err := r.dir.ResolvePath(res.DestinationName, true)
	if err != nil {
		return "", &transfer.PlacementError{Op: "resolve", Path: res.DestinationName, Err: err}
	}

	if res.Mode != resource.ModeNewFile || !r.dir.Exists(base) {
		return base, nil
	}

	stem, ext := SplitName(res.DestinationName)

	for n := 1; ; n++ {
		candidate, err := r.dir.ResolvePath(stem+"("+strconv.Itoa(n)+")"+ext, false)
		if err != nil {
			return "", &transfer.PlacementError{Op: "resolve", Path: res.DestinationName, Err: err}
		}

		if !r.dir.Exists(candidate) {
			return candidate, nil
		}
	}
}

// SplitName splits a file name into stem and extension. The extension includes the
// dot. Names with no dot, or with only a leading dot, have no extension.
func SplitName(name string) (stem, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}

	return name[:i], name[i:]
}

// PlaceFile moves a finished transfer to destination and applies attrs. When the
// attributes cannot be applied the file stays placed and the error is still returned.
func (r *Resolver) PlaceFile(tempLocation, destination string, attrs resource.Attributes) (resource.DownloadedFile, error) {
	if err := r.dir.Move(tempLocation, destination); err != nil {
		return resource.DownloadedFile{}, &transfer.PlacementError{Op: "move", Path: destination, Err: err}
	}

	file, err := r.relative(destination)
	if err != nil {
		return resource.DownloadedFile{}, &transfer.PlacementError{Op: "move", Path: destination, Err: err}
	}

	if len(attrs) == 0 {
		return file, nil
	}

	if err := r.dir.SetAttributes(destination, attrs); err != nil {
		return file, &transfer.PlacementError{Op: "set_attributes", Path: destination, Err: err}
	}

	return file, nil
}

// Place resolves the destination of res and moves tempLocation there.
func (r *Resolver) Place(tempLocation string, res resource.Resource) (resource.DownloadedFile, error) {
	destination, err := r.ResolveDestination(res)
	if err != nil {
		return resource.DownloadedFile{}, err
	}

	return r.PlaceFile(tempLocation, destination, res.Attributes)
}

// Existing returns the file previously placed under name, if any.
func (r *Resolver) Existing(name string) (resource.DownloadedFile, bool) {
	path, err := r.dir.ResolvePath(name, false)
	if err != nil || !r.dir.Exists(path) {
		return resource.DownloadedFile{}, false
	}

	return resource.DownloadedFile{RelativePath: name}, true
}

// AbsolutePath resolves a downloaded file against the downloads directory.
func (r *Resolver) AbsolutePath(file resource.DownloadedFile) (string, error) {
	path, err := file.AbsolutePath(r.dir)
	if err != nil {
		return "", &transfer.FilesystemError{Op: "resolve", Path: file.RelativePath, Err: err}
	}

	return path, nil
}

// Remove deletes a downloaded file.
func (r *Resolver) Remove(file resource.DownloadedFile) error {
	path, err := r.AbsolutePath(file)
	if err != nil {
		return err
	}

	if err := r.dir.RemoveEntry(path); err != nil {
		return &transfer.FilesystemError{Op: "remove", Path: path, Err: err}
	}

	return nil
}

// Clean removes every entry of the downloads directory. It keeps going after a
// failed removal and reports the first failure.
func (r *Resolver) Clean() error {
	names, err := r.dir.ListEntries()
	if err != nil {
		return &transfer.FilesystemError{Op: "list", Path: r.dir.Root(), Err: err}
	}

	var first error

	for _, name := range names {
		path := filepath.Join(r.dir.Root(), name)
		if err := r.dir.RemoveEntry(path); err != nil && first == nil {
			first = &transfer.FilesystemError{Op: "remove", Path: path, Err: err}
		}
	}

	return first
}

func (r *Resolver) relative(path string) (resource.DownloadedFile, error) {
	rel, err := filepath.Rel(r.dir.Root(), path)
	if err != nil {
		return resource.DownloadedFile{}, fmt.Errorf("failed to relativize %s: %w", path, err)
	}

	return resource.DownloadedFile{RelativePath: rel}, nil
}
