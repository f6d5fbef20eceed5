// Package diagnosis maps model classes to plant and disease information.
package diagnosis

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Plant holds general care advice for one plant species.
type Plant struct {
	Name string   `yaml:"name"`
	Care []string `yaml:"care"`
}

// Entry is one model class.
type Entry struct {
	Label       string   `yaml:"label"`
	Plant       string   `yaml:"plant"`
	Disease     string   `yaml:"disease"`
	Healthy     bool     `yaml:"healthy"`
	Description string   `yaml:"description"`
	Symptoms    []string `yaml:"symptoms"`
	Treatments  []string `yaml:"treatments"`
	Prevention  []string `yaml:"prevention"`
	Care        []string `yaml:"care"`
}

// Catalog is the static class mapping. Classes are in model output order.
type Catalog struct {
	Plants  []Plant `yaml:"plants"`
	Classes []Entry `yaml:"classes"`
}

// Labels returns the class labels in model output order.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.Classes))
	for i, e := range c.Classes {
		out[i] = e.Label
	}
	return out
}

// DefaultCatalog returns the embedded PlantVillage catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("invalid catalog: no classes")
	}
	seen := make(map[string]int, len(c.Classes))
	for i, e := range c.Classes {
		if e.Label == "" {
			return fmt.Errorf("invalid catalog: class %d has no label", i)
		}
		if strings.TrimSpace(e.Plant) == "" || strings.TrimSpace(e.Disease) == "" {
			return fmt.Errorf("invalid catalog: class %q needs plant and disease", e.Label)
		}
		if prev, ok := seen[normalize(e.Label)]; ok {
			return fmt.Errorf("invalid catalog: label %q repeated at %d and %d", e.Label, prev, i)
		}
		seen[normalize(e.Label)] = i
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
