package models

import (
	"fmt"
	"time"
)

type ParamType string

const (
	ParamString ParamType = "string"
	ParamBool   ParamType = "boolean"
	ParamNumber ParamType = "number"
)

type FailurePolicy string

const (
	FailAbort    FailurePolicy = "abort-pipeline"
	FailContinue FailurePolicy = "continue"
)

// ParamSpec describes one caller-suppliable parameter.
type ParamSpec struct {
	Type        ParamType   `yaml:"type" json:"type"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// ParameterSchema maps parameter names to their specs.
type ParameterSchema map[string]ParamSpec

// PreflightCheck is a pre-stage hook that must pass before stage one starts.
// Only file-existence checks are supported for now.
type PreflightCheck struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// StageSpec is one ordered unit of work within a pipeline.
type StageSpec struct {
	Name      string        `yaml:"name" json:"name"`
	Run       string        `yaml:"run" json:"run"`
	Inputs    []string      `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs   []string      `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	OnFailure FailurePolicy `yaml:"onFailure,omitempty" json:"onFailure,omitempty"`
	Timeout   string        `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Needs     []string      `yaml:"needs,omitempty" json:"needs,omitempty"`
}

// Policy returns the stage's failure policy, defaulting to abort-pipeline.
func (s *StageSpec) Policy() FailurePolicy {
	if s.OnFailure == "" {
		return FailAbort
	}
	return s.OnFailure
}

// PipelineDefinition is a named, versioned pipeline: a parameter schema plus
// an ordered stage list. Immutable once published under a version tag.
type PipelineDefinition struct {
	Name           string           `yaml:"name" json:"name"`
	Version        string           `yaml:"version,omitempty" json:"version,omitempty"`
	Description    string           `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters     ParameterSchema  `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Preflight      []PreflightCheck `yaml:"preflight,omitempty" json:"preflight,omitempty"`
	Stages         []StageSpec      `yaml:"stages" json:"stages"`
	DefaultTimeout string           `yaml:"defaultTimeout,omitempty" json:"defaultTimeout,omitempty"`
	// Schedule is an optional cron spec; scheduled invocations run with
	// schema defaults only.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// Clone returns a deep copy so resolved plans are never aliased to registry
// state.
func (d *PipelineDefinition) Clone() *PipelineDefinition {
	out := *d
	if d.Parameters != nil {
		out.Parameters = make(ParameterSchema, len(d.Parameters))
		for k, v := range d.Parameters {
			out.Parameters[k] = v
		}
	}
	out.Preflight = append([]PreflightCheck(nil), d.Preflight...)
	out.Stages = make([]StageSpec, len(d.Stages))
	for i, s := range d.Stages {
		cp := s
		cp.Inputs = append([]string(nil), s.Inputs...)
		cp.Outputs = append([]string(nil), s.Outputs...)
		cp.Needs = append([]string(nil), s.Needs...)
		out.Stages[i] = cp
	}
	return &out
}

// Validate checks structural invariants: every stage input must be a declared
// parameter, stage names must be unique, needs references must point at
// earlier stages, and timeouts, policies and defaults must be well formed.
func (d *PipelineDefinition) Validate() error {
	if d.Name == "" {
		return &ValidationError{Pipeline: d.Name, Msg: "pipeline name is empty"}
	}
	if len(d.Stages) == 0 {
		return &ValidationError{Pipeline: d.Name, Msg: "pipeline has no stages"}
	}
	for name, spec := range d.Parameters {
		switch spec.Type {
		case ParamString, ParamBool, ParamNumber:
		default:
			return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("parameter %q has unknown type %q", name, spec.Type)}
		}
		if spec.Default != nil {
			if _, err := CoerceValue(spec.Type, spec.Default); err != nil {
				return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("parameter %q default does not match type %s", name, spec.Type)}
			}
		}
	}
	if d.DefaultTimeout != "" {
		if _, err := time.ParseDuration(d.DefaultTimeout); err != nil {
			return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("invalid defaultTimeout %q", d.DefaultTimeout)}
		}
	}
	seen := make(map[string]int, len(d.Stages))
	for i, stage := range d.Stages {
		if stage.Name == "" {
			return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("stage %d has no name", i)}
		}
		if _, dup := seen[stage.Name]; dup {
			return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("duplicate stage name %q", stage.Name)}
		}
		if stage.Run == "" {
			return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("stage %q has no run command", stage.Name)}
		}
		switch stage.OnFailure {
		case "", FailAbort, FailContinue:
		default:
			return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("stage %q has unknown onFailure policy %q", stage.Name, stage.OnFailure)}
		}
		if stage.Timeout != "" {
			if _, err := time.ParseDuration(stage.Timeout); err != nil {
				return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("stage %q has invalid timeout %q", stage.Name, stage.Timeout)}
			}
		}
		for _, input := range stage.Inputs {
			if _, ok := d.Parameters[input]; !ok {
				return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("stage %q consumes undeclared parameter %q", stage.Name, input)}
			}
		}
		// Needs may only reference stages declared earlier, which keeps the
		// ordering an explicit acyclic chain.
		for _, need := range stage.Needs {
			if _, ok := seen[need]; !ok {
				return &ValidationError{Pipeline: d.Name, Msg: fmt.Sprintf("stage %q needs unknown or later stage %q", stage.Name, need)}
			}
		}
		seen[stage.Name] = i
	}
	return nil
}

// CoerceValue checks a raw value against a parameter type and normalizes it:
// numbers become float64, booleans and strings keep their Go type. YAML and
// JSON decoders disagree on integer types, so both int and float inputs are
// accepted for number parameters.
func CoerceValue(t ParamType, v interface{}) (interface{}, error) {
	switch t {
	case ParamString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ParamBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ParamNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("value %v is not a %s", v, t)
}
