// Package catalog reads sound catalogs used to populate the search index and feature store.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidbz/soundgraph/internal/featureindex"
)

// Catalog declares feature sets and the sounds to ingest.
type Catalog struct {
	FeatureSets []featureindex.FeatureSet `yaml:"feature_sets"`
	Sounds      []Sound                   `yaml:"sounds"`
}

// Sound is one catalog entry.
type Sound struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Username    string               `yaml:"username"`
	Tags        []string             `yaml:"tags"`
	Description string               `yaml:"description"`
	Pack        string               `yaml:"pack"`
	Created     string               `yaml:"created"`
	Features    map[string][]float32 `yaml:"features"`
}

// Text is the metadata used to embed the sound for text feature sets.
func (s Sound) Text() string {
	parts := []string{s.Name}
	if len(s.Tags) > 0 {
		parts = append(parts, strings.Join(s.Tags, " "))
	}
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	return strings.TrimSpace(strings.Join(parts, " | "))
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a YAML catalog.
func Parse(r io.Reader) (*Catalog, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var cat Catalog
	if err := decoder.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return &cat, nil
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks ids are present and unique and feature sets are well formed.
func (c *Catalog) Validate() error {
	sets := make(map[string]struct{}, len(c.FeatureSets))
	for _, set := range c.FeatureSets {
		if err := set.Validate(); err != nil {
			return err
		}
		if _, dup := sets[set.Name]; dup {
			return fmt.Errorf("feature set %s declared twice", set.Name)
		}
		sets[set.Name] = struct{}{}
	}

	ids := make(map[string]struct{}, len(c.Sounds))
	for i, sound := range c.Sounds {
		if sound.ID == "" {
			return fmt.Errorf("sound %d has no id", i)
		}
		if _, dup := ids[sound.ID]; dup {
			return fmt.Errorf("sound %s listed twice", sound.ID)
		}
		ids[sound.ID] = struct{}{}

		for name := range sound.Features {
			if _, ok := sets[name]; !ok {
				return fmt.Errorf("sound %s has vectors for undeclared feature set %s", sound.ID, name)
			}
		}
	}
	return nil
}
