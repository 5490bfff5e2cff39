package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/cedric/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
defaults:
  mode: new_file
  permissions: "0640"
resources:
  - id: "1"
    url: https://example.com/a.png
    name: a.png
  - id: "2"
    url: https://example.com/b.png
    name: b.png
    mode: reuse_if_exists
    permissions: "0600"
    modified_at: 2024-01-02T03:04:05Z
`

func TestParse(t *testing.T) {
	resources, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, resources, 2)

	a := resources[0]
	assert.Equal(t, "1", a.ID)
	assert.Equal(t, "a.png", a.DestinationName)
	assert.Equal(t, "https://example.com/a.png", a.Source.String())
	assert.Equal(t, resource.ModeNewFile, a.Mode)
	assert.Equal(t, "0640", a.Attributes[resource.AttrPermissions])

	b := resources[1]
	assert.Equal(t, resource.ModeReuseIfExists, b.Mode)
	assert.Equal(t, "0600", b.Attributes[resource.AttrPermissions])
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), b.Attributes[resource.AttrModificationDate])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "invalid yaml", data: "resources: [", wantErr: "parse manifest"},
		{name: "missing id", data: "resources:\n  - url: https://x/a\n    name: a", wantErr: "manifest entry 0: id is required"},
		{name: "missing name", data: "resources:\n  - id: \"1\"\n    url: https://x/a", wantErr: "manifest entry 0: name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParse_KeepsUnparsableURLForEnqueue(t *testing.T) {
	resources, err := Parse([]byte("resources:\n  - id: \"1\"\n    url: not a url\n    name: a"))
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Nil(t, resources[0].Source)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	resources, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, resources, 2)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read manifest")
}
