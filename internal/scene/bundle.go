package scene

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle is the manifest of a source bundle: the named collections it carries.
type Bundle struct {
	Collections []BundleCollection `yaml:"collections"`
}

type BundleCollection struct {
	Name    string   `yaml:"name"`
	Objects []string `yaml:"objects,omitempty"`
}

// Names lists the collection names in manifest order.
func (b Bundle) Names() []string {
	names := make([]string, 0, len(b.Collections))
	for _, c := range b.Collections {
		names = append(names, c.Name)
	}
	return names
}

func (b Bundle) Find(name string) (BundleCollection, bool) {
	for _, c := range b.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return BundleCollection{}, false
}

// BundleLoader resolves a bundle path to its manifest.
type BundleLoader interface {
	LoadBundle(path string) (Bundle, error)
}

// FileBundles reads YAML bundle manifests from disk.
type FileBundles struct{}

func (FileBundles) LoadBundle(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Bundle{}, fmt.Errorf("%w: %s", ErrBundleNotFound, path)
		}
		return Bundle{}, err
	}
	var b Bundle
	if err = yaml.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("bundle %s: %w", path, err)
	}
	return b, nil
}

// StaticBundles serves manifests from memory, keyed by path.
type StaticBundles map[string]Bundle

func (s StaticBundles) LoadBundle(path string) (Bundle, error) {
	b, ok := s[path]
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %s", ErrBundleNotFound, path)
	}
	return b, nil
}
