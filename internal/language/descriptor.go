package language

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed ledger.yaml
var ledgerDescriptor []byte

// Keywords are the directive keywords offered by completion.
type Keywords struct {
	Dated   []string `yaml:"dated"`
	Undated []string `yaml:"undated"`
}

// Descriptor is the declarative part of a language pack.
type Descriptor struct {
	Name          string            `yaml:"name"`
	Extensions    []string          `yaml:"extensions"`
	CommentPrefix string            `yaml:"comment_prefix"`
	Highlights    map[string]string `yaml:"highlights"`
	Folds         []string          `yaml:"folds"`
	Indents       []string          `yaml:"indents"`
	Keywords      Keywords          `yaml:"keywords"`
}

// DefaultDescriptor returns the embedded ledger descriptor.
func DefaultDescriptor() *Descriptor {
	d, err := ParseDescriptor(ledgerDescriptor)
	if err != nil {
		panic(fmt.Sprintf("embedded ledger descriptor: %v", err))
	}
	return d
}

// ParseDescriptor decodes and validates a YAML descriptor.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode language descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks required fields.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("language descriptor: name is required")
	}
	if len(d.Extensions) == 0 {
		return fmt.Errorf("language descriptor %q: at least one extension is required", d.Name)
	}
	for _, ext := range d.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("language descriptor %q: extension %q must start with a dot", d.Name, ext)
		}
	}
	return nil
}

// HighlightTags returns the distinct highlight tags, sorted.
func (d *Descriptor) HighlightTags() []string {
	var tags []string
	for _, tag := range d.Highlights {
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}
