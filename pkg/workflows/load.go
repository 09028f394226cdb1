package workflows

import (
	"fmt"
	"os"

	"github.com/Promptonauts/flowline/pkg/models"
	"gopkg.in/yaml.v3"
)

// Parse decodes a pipeline definition from YAML and validates it.
func Parse(data []byte) (*models.PipelineDefinition, error) {
	var def models.PipelineDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse pipeline yaml: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads a pipeline definition from a YAML file.
func Load(path string) (*models.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	return Parse(data)
}
