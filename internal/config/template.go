package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/altafino/attachment-fetcher/internal/types"
)

// Templates holds partial profiles that profiles can name in meta.template
type Templates map[string]*types.Config

// LoadTemplates loads all template files from the templates directory. A
// missing directory yields no templates.
func LoadTemplates(templatesDir string) (Templates, error) {
	templates := make(Templates)

	entries, err := os.ReadDir(templatesDir)
	if errors.Is(err, os.ErrNotExist) {
		return templates, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		template, err := loadSingleConfig(filepath.Join(templatesDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", entry.Name(), err)
		}
		templates[strings.TrimSuffix(entry.Name(), ".yaml")] = template
	}

	return templates, nil
}

// Apply merges a template under a configuration: values set in cfg win.
func (t Templates) Apply(cfg *types.Config, templateName string) error {
	template, exists := t[templateName]
	if !exists {
		return fmt.Errorf("template %s not found", templateName)
	}

	base := &types.Config{}
	if err := mergo.Merge(base, template); err != nil {
		return fmt.Errorf("failed to copy template: %w", err)
	}
	if err := mergo.Merge(base, cfg, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config with template: %w", err)
	}

	*cfg = *base
	return nil
}
