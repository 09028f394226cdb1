// Package resolver turns a pipeline invocation (name, version ref, parameter
// bindings) into an immutable execution plan.
package resolver

import (
	"sort"
	"time"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/registry"
	"github.com/google/uuid"
)

type Resolver struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Plan resolves the definition and binds every schema parameter: a supplied
// binding is type-checked, otherwise the schema default applies, otherwise
// the parameter is missing and planning fails. Binding keys outside the
// schema fail as unknown. Apart from the registry lookup, planning has no
// side effects: identical inputs always produce a plan with an identical
// fingerprint.
func (r *Resolver) Plan(name, ref string, bindings models.BindingSet) (*models.ExecutionPlan, error) {
	def, err := r.registry.Resolve(name, ref)
	if err != nil {
		return nil, err
	}

	for _, key := range sortedKeys(bindings) {
		if _, ok := def.Parameters[key]; !ok {
			return nil, &models.UnknownParameterError{Pipeline: name, Param: key}
		}
	}

	bound := make(models.BindingSet, len(def.Parameters))
	for _, param := range sortedParams(def.Parameters) {
		spec := def.Parameters[param]
		if raw, ok := bindings[param]; ok {
			value, err := models.CoerceValue(spec.Type, raw)
			if err != nil {
				return nil, &models.TypeMismatchError{Pipeline: name, Param: param, Want: spec.Type, Got: raw}
			}
			bound[param] = value
			continue
		}
		if spec.Default != nil {
			value, err := models.CoerceValue(spec.Type, spec.Default)
			if err != nil {
				return nil, &models.TypeMismatchError{Pipeline: name, Param: param, Want: spec.Type, Got: spec.Default}
			}
			bound[param] = value
			continue
		}
		return nil, &models.MissingParameterError{Pipeline: name, Param: param}
	}

	return &models.ExecutionPlan{
		ID:        uuid.New().String(),
		Pipeline:  *def,
		Bindings:  bound,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func sortedKeys(bindings models.BindingSet) []string {
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedParams(schema models.ParameterSchema) []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
