package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks payloads against the schema of their event type.
// Compiled schemas are cached per event type.
type Validator struct {
	mu    sync.RWMutex
	cache map[EventType]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[EventType]*jsonschema.Schema),
	}
}

// Validate checks raw JSON against the schema of t.
func (v *Validator) Validate(t EventType, raw []byte) error {
	compiled, err := v.compile(t)
	if err != nil {
		return err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return compiled.Validate(doc)
}

func (v *Validator) compile(t EventType) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.cache[t]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	def, ok := Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}

	var doc any
	if err := json.Unmarshal(def.Schema, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := "resthook://schema/" + string(t)

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	v.cache[t] = compiled
	v.mu.Unlock()

	return compiled, nil
}
