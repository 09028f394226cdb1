// Package registry holds named, versioned pipeline definitions. Version tags
// are immutable once published; moving labels such as "main" may be
// repointed.
package registry

import (
	"fmt"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/Promptonauts/flowline/pkg/trigger"
)

type Registry struct {
	store store.Store
}

func New(st store.Store) *Registry {
	return &Registry{store: st}
}

// Publish stores a definition under a version ref after validating it.
// Publishing to an already-populated version tag fails with ErrVersionExists;
// moving labels are always overwritten.
func (r *Registry) Publish(def *models.PipelineDefinition, ref string) error {
	if ref == "" {
		return &models.ValidationError{Pipeline: def.Name, Msg: "version ref is empty"}
	}
	if err := def.Validate(); err != nil {
		return err
	}

	// Fast-path check only; the store re-checks under its write lock so two
	// concurrent publishes of the same tag cannot both win.
	immutable := trigger.IsVersionTag(ref)
	if immutable {
		exists, err := r.store.DefinitionExists(def.Name, ref)
		if err != nil {
			return fmt.Errorf("check existing version: %w", err)
		}
		if exists {
			return fmt.Errorf("pipeline %q ref %q: %w", def.Name, ref, models.ErrVersionExists)
		}
	}

	stored := def.Clone()
	stored.Version = ref
	return r.store.PutDefinition(def.Name, ref, immutable, stored)
}

// Resolve returns the definition snapshot published under (name, ref). The
// returned copy is independent of registry state: a later repoint of a moving
// label never mutates a definition already handed out.
func (r *Registry) Resolve(name, ref string) (*models.PipelineDefinition, error) {
	def, err := r.store.GetDefinition(name, ref)
	if err != nil {
		return nil, err
	}
	def.Version = ref
	return def, nil
}

// List returns every published (name, ref) pair.
func (r *Registry) List() ([]store.DefinitionInfo, error) {
	return r.store.ListDefinitions()
}

// Refs returns the refs published for one pipeline name.
func (r *Registry) Refs(name string) ([]string, error) {
	refs, err := r.store.ListRefs(name)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, &models.NotFoundError{Name: name}
	}
	return refs, nil
}

// Watch exposes the store's publish events.
func (r *Registry) Watch() <-chan store.DefinitionEvent {
	return r.store.Watch()
}
