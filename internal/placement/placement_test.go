package placement_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/italolelis/cedric/internal/placement"
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/storage/disk"
	"github.com/italolelis/cedric/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) (*placement.Resolver, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "Downloads")

	return placement.NewResolver(disk.New(root)), root
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "transfer-*")
	require.NoError(t, err)

	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	return f.Name()
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name string
		stem string
		ext  string
	}{
		{"a.png", "a", ".png"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".bashrc", ".bashrc", ""},
		{"trailing.", "trailing", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem, ext := placement.SplitName(tt.name)
			assert.Equal(t, tt.stem, stem)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestResolveDestination_NewFileSequence(t *testing.T) {
	r, root := newResolver(t)
	res := resource.New("1", "https://example.com/a.png", "a.png", resource.WithMode(resource.ModeNewFile))

	want := []string{"a.png", "a(1).png", "a(2).png", "a(3).png"}

	for _, name := range want {
		path, err := r.ResolveDestination(res)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, name), path)

		_, err = r.PlaceFile(writeTemp(t, name), path, nil)
		require.NoError(t, err)
	}
}

func TestResolveDestination_NoExtension(t *testing.T) {
	r, root := newResolver(t)
	res := resource.New("1", "https://example.com/f", ".env", resource.WithMode(resource.ModeNewFile))

	path, err := r.ResolveDestination(res)
	require.NoError(t, err)
	_, err = r.PlaceFile(writeTemp(t, "x"), path, nil)
	require.NoError(t, err)

	path, err = r.ResolveDestination(res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env(1)"), path)
}

func TestResolveDestination_ReuseIsFixed(t *testing.T) {
	r, root := newResolver(t)
	res := resource.New("1", "https://example.com/a.png", "a.png")

	path, err := r.ResolveDestination(res)
	require.NoError(t, err)
	_, err = r.PlaceFile(writeTemp(t, "x"), path, nil)
	require.NoError(t, err)

	path, err = r.ResolveDestination(res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.png"), path)
}

func TestResolveDestination_RejectsEscapingName(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.ResolveDestination(resource.New("1", "https://example.com/a", "../a.png"))

	var perr *transfer.PlacementError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "resolve", perr.Op)
}

func TestPlace(t *testing.T) {
	r, root := newResolver(t)
	res := resource.New("1", "https://example.com/a.png", "a.png",
		resource.WithAttributes(resource.Attributes{resource.AttrPermissions: os.FileMode(0o600)}))

	file, err := r.Place(writeTemp(t, "payload"), res)
	require.NoError(t, err)
	assert.Equal(t, "a.png", file.RelativePath)

	info, err := os.Stat(filepath.Join(root, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPlaceFile_MoveFailure(t *testing.T) {
	r, root := newResolver(t)

	_, err := r.PlaceFile(filepath.Join(t.TempDir(), "missing"), filepath.Join(root, "a.png"), nil)

	var perr *transfer.PlacementError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "move", perr.Op)
	assert.NoFileExists(t, filepath.Join(root, "a.png"))
}

func TestPlaceFile_AttributeFailureKeepsFile(t *testing.T) {
	r, root := newResolver(t)
	res := resource.New("1", "https://example.com/a.png", "a.png",
		resource.WithAttributes(resource.Attributes{"owner": "nobody"}))

	file, err := r.Place(writeTemp(t, "payload"), res)

	var perr *transfer.PlacementError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "set_attributes", perr.Op)
	assert.Equal(t, "a.png", file.RelativePath)
	assert.FileExists(t, filepath.Join(root, "a.png"))
}

func TestExistingAndRemove(t *testing.T) {
	r, root := newResolver(t)

	_, ok := r.Existing("a.png")
	assert.False(t, ok)

	_, err := r.Place(writeTemp(t, "payload"), resource.New("1", "https://example.com/a.png", "a.png"))
	require.NoError(t, err)

	file, ok := r.Existing("a.png")
	require.True(t, ok)

	path, err := r.AbsolutePath(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.png"), path)

	require.NoError(t, r.Remove(file))
	assert.NoFileExists(t, path)

	err = r.Remove(file)

	var ferr *transfer.FilesystemError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "remove", ferr.Op)
}

func TestClean(t *testing.T) {
	r, root := newResolver(t)

	require.NoError(t, r.Clean())

	for _, name := range []string{"a.png", "b.png"} {
		_, err := r.Place(writeTemp(t, name), resource.New(name, "https://example.com/"+name, name))
		require.NoError(t, err)
	}

	require.NoError(t, r.Clean())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
