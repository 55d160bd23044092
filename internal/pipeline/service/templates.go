package service

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"outreach_backend/internal/pipeline/domain"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

const defaultTemplatesFile = "templates/default_pipelines.yaml"

// PipelineTemplate describes a pipeline to seed for a tenant.
type PipelineTemplate struct {
	Name   string          `yaml:"name"`
	Active bool            `yaml:"active"`
	Stages []StageTemplate `yaml:"stages"`
}

// StageTemplate describes one stage. Stage order follows list position.
type StageTemplate struct {
	Name         string  `yaml:"name"`
	Terminal     bool    `yaml:"terminal"`
	FollowupDays int     `yaml:"followup_days"`
	AutoTemplate *string `yaml:"auto_template"`
}

type templateFile struct {
	Pipelines []PipelineTemplate `yaml:"pipelines"`
}

// LoadTemplates reads pipeline templates from path, or the built-in set when
// path is empty.
func LoadTemplates(path string) ([]PipelineTemplate, error) {
	var (
		raw []byte
		err error
	)
	if strings.TrimSpace(path) == "" {
		raw, err = templateFS.ReadFile(defaultTemplatesFile)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read pipeline templates: %w", err)
	}
	return ParseTemplates(raw)
}

// ParseTemplates decodes and validates a YAML template document.
func ParseTemplates(raw []byte) ([]PipelineTemplate, error) {
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode pipeline templates: %w", err)
	}
	for i, p := range file.Pipelines {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", i, err)
		}
	}
	return file.Pipelines, nil
}

func (p PipelineTemplate) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("%q has no stages", p.Name)
	}
	seen := make(map[string]struct{}, len(p.Stages))
	for _, s := range p.Stages {
		key := domain.Fold(s.Name)
		if key == "" {
			return fmt.Errorf("%q has a stage without a name", p.Name)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%q has duplicate stage %q", p.Name, s.Name)
		}
		seen[key] = struct{}{}
		if s.FollowupDays < 0 {
			return fmt.Errorf("stage %q has negative followup_days", s.Name)
		}
	}
	return nil
}
