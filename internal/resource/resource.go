package resource

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Mode selects how a resource collides with files already in the downloads directory.
type Mode int

const (
	// ModeReuseIfExists reuses a previously downloaded file with the same destination
	// name and never runs two transfers for the same name at once.
	ModeReuseIfExists Mode = iota
	// ModeNewFile always downloads into a fresh, non-colliding file name.
	ModeNewFile
)

func (m Mode) String() string {
	switch m {
	case ModeNewFile:
		return "new_file"
	case ModeReuseIfExists:
		return "reuse_if_exists"
	default:
		return "unknown"
	}
}

// ParseMode converts the textual form used by configuration and the API into a Mode.
// Unknown values fall back to ModeReuseIfExists.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new_file", "newfile", "new":
		return ModeNewFile
	default:
		return ModeReuseIfExists
	}
}

// Attribute keys understood by the downloads directory.
const (
	AttrPermissions      = "permissions"
	AttrModificationDate = "modification_date"
	AttrAccessDate       = "access_date"
)

// Attributes are applied to a file once it has been placed in the downloads directory.
type Attributes map[string]any

// Resource describes what to download and how to name it. It is never mutated after
// construction.
type Resource struct {
	ID              string
	Source          *url.URL
	DestinationName string
	Mode            Mode
	Attributes      Attributes
}

// Option customizes a Resource built with New.
type Option func(*Resource)

// WithMode sets the collision mode.
func WithMode(m Mode) Option {
	return func(r *Resource) {
		r.Mode = m
	}
}

// WithAttributes sets the attributes applied after placement.
func WithAttributes(attrs Attributes) Option {
	return func(r *Resource) {
		r.Attributes = attrs
	}
}

// New builds a Resource from a raw URL. A URL that cannot be parsed, or that has no
// scheme, leaves Source nil; enqueueing such a resource fails.
func New(id, rawURL, destinationName string, opts ...Option) Resource {
	r := Resource{
		ID:              id,
		DestinationName: destinationName,
	}

	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		r.Source = u
	}

	for _, opt := range opts {
		opt(&r)
	}

	return r
}

// Equal reports whether two resources describe the same download. Attributes are not
// compared.
func (r Resource) Equal(other Resource) bool {
	return r.ID == other.ID &&
		r.DestinationName == other.DestinationName &&
		r.Mode == other.Mode &&
		sourceString(r.Source) == sourceString(other.Source)
}

func sourceString(u *url.URL) string {
	if u == nil {
		return ""
	}

	return u.String()
}

// PathResolver turns a name relative to the downloads directory into an absolute path.
type PathResolver interface {
	ResolvePath(name string, create bool) (string, error)
}

// DownloadedFile is a file placed in the downloads directory. Only the path relative
// to the directory root is kept, since the root may move between installs.
type DownloadedFile struct {
	RelativePath string
}

// AbsolutePath resolves the file against the downloads directory.
func (f DownloadedFile) AbsolutePath(root PathResolver) (string, error) {
	return root.ResolvePath(f.RelativePath, false)
}

// Name returns the base name of the file.
func (f DownloadedFile) Name() string {
	return filepath.Base(f.RelativePath)
}
