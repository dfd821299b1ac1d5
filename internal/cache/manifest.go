package cache

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

// Resource names one cacheable remote object within a manifest's folder.
// The file name is the stable identity used for lookups and local storage.
type Resource struct {
	Name string `yaml:"name"`
}

// Manifest declares the fixed set of resources expected under one remote
// folder. It is caller-supplied and never mutated by the cache.
type Manifest struct {
	Folder    string     `yaml:"folder"`
	Resources []Resource `yaml:"resources"`
}

// LoadManifest reads a manifest from a YAML file on disk.
func LoadManifest(filePath string) (*Manifest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", filePath, err)
	}
	defer file.Close()

	return LoadManifestFromReader(file)
}

func LoadManifestFromReader(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) Validate() error {
	if m.Folder == "" {
		return fmt.Errorf("manifest folder cannot be empty")
	}
	for _, res := range m.Resources {
		if res.Name == "" {
			return fmt.Errorf("manifest resource name cannot be empty")
		}
		if strings.ContainsAny(res.Name, "/\\") {
			return fmt.Errorf("manifest resource name %q cannot contain path separators", res.Name)
		}
	}
	return nil
}

// Key returns the full remote object key for a resource in this manifest.
func (m *Manifest) Key(res Resource) string {
	return path.Join(m.Folder, res.Name)
}

// lookup builds the file name -> resource map covering every declared
// resource. Duplicate names are rejected rather than silently overwritten.
func (m *Manifest) lookup() (map[string]Resource, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	byName := make(map[string]Resource, len(m.Resources))
	for _, res := range m.Resources {
		if !seen.Add(res.Name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, res.Name)
		}
		byName[res.Name] = res
	}
	return byName, nil
}
