package model

import (
	"encoding/json"
	"fmt"
	"io"
)

// Resource paths reserved for build-time artifacts consumed at runtime.
const (
	ResourceDir         = "META-INF/pipeline"
	OrderResourcePath   = "META-INF/pipeline/order.json"
	ClientsResourcePath = "META-INF/pipeline/orchestrator-clients.properties"
)

// ClientsSourceOrdinal is the config-source precedence of the orchestrator
// client wiring resource: above application defaults, below environment
// overrides.
const ClientsSourceOrdinal = 90

// OrderedStepList is the canonical ordering of fully-qualified step names
// emitted at build time. It is the single source of truth for traversal
// order at runtime.
type OrderedStepList []string

// DecodeOrder reads an order.json document.
func DecodeOrder(r io.Reader) (OrderedStepList, error) {
	var list OrderedStepList
	dec := json.NewDecoder(r)
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding step order: %w", err)
	}
	seen := make(map[string]struct{}, len(list))
	for _, fqn := range list {
		if fqn == "" {
			return nil, fmt.Errorf("step order contains an empty name")
		}
		if _, dup := seen[fqn]; dup {
			return nil, fmt.Errorf("step order lists %s twice", fqn)
		}
		seen[fqn] = struct{}{}
	}
	return list, nil
}

// Encode writes the list as indented JSON, the canonical order.json form.
func (l OrderedStepList) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("encoding step order: %w", err)
	}
	return nil
}

// Index returns the position of fqn, or -1 when absent.
func (l OrderedStepList) Index(fqn string) int {
	for i, name := range l {
		if name == fqn {
			return i
		}
	}
	return -1
}

// Contains reports whether fqn is part of the canonical order.
func (l OrderedStepList) Contains(fqn string) bool {
	return l.Index(fqn) >= 0
}
