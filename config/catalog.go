package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrUnknownCategory is returned for category names missing from the catalog.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownAttribute is returned for attribute names missing from the catalog.
	ErrUnknownAttribute = errors.New("unknown attribute")
)

// Catalog maps human-readable category and attribute names to Octopart identifiers.
// It is built once at startup and never mutated afterwards.
type Catalog struct {
	categories     map[string]string
	attributes     map[string]string
	ceramicClasses map[string]string
}

type catalogFile struct {
	Categories     map[string]string `yaml:"categories"`
	Attributes     map[string]string `yaml:"attributes"`
	CeramicClasses map[string]string `yaml:"ceramic_classes"`
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw catalogFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}
	if len(raw.Attributes) == 0 {
		return nil, fmt.Errorf("catalog has no attributes")
	}
	return NewCatalog(raw.Categories, raw.Attributes, raw.CeramicClasses), nil
}

// NewCatalog copies the given maps into a Catalog.
func NewCatalog(categories, attributes, ceramicClasses map[string]string) *Catalog {
	return &Catalog{
		categories:     copyMap(categories),
		attributes:     copyMap(attributes),
		ceramicClasses: copyMap(ceramicClasses),
	}
}

// CategoryID returns the API id of a category.
func (c *Catalog) CategoryID(name string) (string, error) {
	id, ok := c.categories[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return id, nil
}

// AttributeKey returns the API key of an attribute.
func (c *Catalog) AttributeKey(name string) (string, error) {
	key, ok := c.attributes[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return key, nil
}

// CategoryName returns the category name of an Octopart category id.
func (c *Catalog) CategoryName(id string) (string, bool) {
	for name, cid := range c.categories {
		if cid == id {
			return name, true
		}
	}
	return "", false
}

// CeramicClass returns the ceramic class of a dielectric code.
func (c *Catalog) CeramicClass(dielectric string) (string, bool) {
	class, ok := c.ceramicClasses[dielectric]
	return class, ok
}

// Attribute pairs a catalog attribute name with its API key.
type Attribute struct {
	Name string
	Key  string
}

// Resolve validates a category and its enumeration attributes, preserving attribute order.
func (c *Catalog) Resolve(category string, attributes []string) (string, []Attribute, error) {
	id, err := c.CategoryID(category)
	if err != nil {
		return "", nil, err
	}
	out := make([]Attribute, 0, len(attributes))
	for _, name := range attributes {
		key, err := c.AttributeKey(name)
		if err != nil {
			return "", nil, err
		}
		out = append(out, Attribute{Name: name, Key: key})
	}
	return id, out, nil
}

// Categories returns category names sorted alphabetically.
func (c *Catalog) Categories() []string {
	return sortedKeys(c.categories)
}

// Attributes returns attribute names sorted alphabetically.
func (c *Catalog) Attributes() []string {
	return sortedKeys(c.attributes)
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
