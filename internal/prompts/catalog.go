// Package prompts holds the instruction text sent to the models: the
// extraction catalog (one prompt per document type, loaded from YAML) and the
// fixed agent and scanner instructions.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/errs"
	"gopkg.in/yaml.v3"
)

//go:embed extraction.yaml
var defaultCatalog []byte

// Catalog maps a document type tag to its extraction prompt. It is read-only
// after loading.
type Catalog struct {
	prompts map[string]string
}

// LoadDefault parses the catalog compiled into the binary.
func LoadDefault() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "prompts.Load", err, fmt.Sprintf("failed to read prompt catalog %s", path))
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	const op = "prompts.Parse"
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindConfig, op, err, "failed to parse prompt catalog")
	}
	if len(raw) == 0 {
		return nil, errs.E(errs.KindConfig, op, "prompt catalog is empty")
	}
	for tag, text := range raw {
		if strings.TrimSpace(text) == "" {
			return nil, errs.E(errs.KindConfig, op, fmt.Sprintf("prompt for %q is empty", tag))
		}
	}
	return &Catalog{prompts: raw}, nil
}

// Get returns the prompt for tag.
func (c *Catalog) Get(tag string) (string, error) {
	text, ok := c.prompts[tag]
	if !ok {
		return "", errs.E(errs.KindNotFound, "prompts.Get", fmt.Sprintf("no prompt configured for document type %q", tag))
	}
	return text, nil
}

// Tags returns the configured tags, sorted.
func (c *Catalog) Tags() []string {
	tags := make([]string, 0, len(c.prompts))
	for tag := range c.prompts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
