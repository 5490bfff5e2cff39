// Package manifest reads batches of resources to download from YAML files.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/italolelis/cedric/internal/resource"
	"gopkg.in/yaml.v3"
)

// Entry describes one resource. It is shared by the manifest file and the REST API.
type Entry struct {
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name" json:"name"`
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Permissions is an octal string such as "0644".
	Permissions string     `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	ModifiedAt  *time.Time `yaml:"modified_at,omitempty" json:"modified_at,omitempty"`
	AccessedAt  *time.Time `yaml:"accessed_at,omitempty" json:"accessed_at,omitempty"`
}

// Manifest is a list of entries with defaults applied to entries that leave a field
// empty.
type Manifest struct {
	Defaults struct {
		Mode        string `yaml:"mode"`
		Permissions string `yaml:"permissions"`
	} `yaml:"defaults"`
	Resources []Entry `yaml:"resources"`
}

// Validate checks the fields every entry needs. The URL itself is checked when the
// resource is enqueued.
func (e Entry) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}

	if e.Name == "" {
		return errors.New("name is required")
	}

	return nil
}

// Resource converts the entry into a resource.Resource.
func (e Entry) Resource() resource.Resource {
	attrs := resource.Attributes{}

	if e.Permissions != "" {
		attrs[resource.AttrPermissions] = e.Permissions
	}

	if e.ModifiedAt != nil {
		attrs[resource.AttrModificationDate] = *e.ModifiedAt
	}

	if e.AccessedAt != nil {
		attrs[resource.AttrAccessDate] = *e.AccessedAt
	}

	opts := []resource.Option{resource.WithMode(resource.ParseMode(e.Mode))}
	if len(attrs) > 0 {
		opts = append(opts, resource.WithAttributes(attrs))
	}

	return resource.New(e.ID, e.URL, e.Name, opts...)
}

// LoadFromFile reads and validates the manifest at path.
func LoadFromFile(path string) ([]resource.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML manifest into resources, in file order.
func Parse(data []byte) ([]resource.Resource, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	resources := make([]resource.Resource, 0, len(m.Resources))

	for i, e := range m.Resources {
		if e.Mode == "" {
			e.Mode = m.Defaults.Mode
		}

		if e.Permissions == "" {
			e.Permissions = m.Defaults.Permissions
		}

		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}

		resources = append(resources, e.Resource())
	}

	return resources, nil
}
