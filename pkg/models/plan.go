package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// BindingSet holds the concrete values a caller supplied for pipeline
// parameters, keyed by parameter name.
type BindingSet map[string]interface{}

// ExecutionPlan is an immutable, fully resolved invocation: a snapshot of the
// definition at resolution time plus every parameter bound to a value.
type ExecutionPlan struct {
	ID        string             `json:"id"`
	Pipeline  PipelineDefinition `json:"pipeline"`
	Bindings  BindingSet         `json:"bindings"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Fingerprint hashes the resolved content (definition snapshot plus bound
// values, excluding the ID/timestamp envelope). Two plans for identical
// inputs always share a fingerprint.
func (p *ExecutionPlan) Fingerprint() string {
	payload := struct {
		Pipeline PipelineDefinition `json:"pipeline"`
		Bindings BindingSet         `json:"bindings"`
	}{p.Pipeline, p.Bindings}

	// encoding/json writes map keys in sorted order, which makes the
	// encoding canonical for our purposes.
	data, err := json.Marshal(payload)
	if err != nil {
		// An unencodable plan must not share a fingerprint with an encodable
		// one (or degenerate to ""), so hash the failure instead.
		data = []byte("unencodable plan: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
