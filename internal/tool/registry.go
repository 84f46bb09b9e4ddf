// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tool provides the function registry and concurrent dispatcher
// for model-invoked tool calls.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jeranaias/puppet/internal/llm"
)

// =============================================================================
// DEFINITION
// =============================================================================

// Implementation is an in-process tool callback. It receives the parsed
// argument JSON and returns a value that will be JSON-encoded into the
// tool-result message. Implementations are trusted and apply their own
// timeouts if they need any.
type Implementation func(ctx context.Context, args json.RawMessage) (any, error)

// Definition describes one callable function: its schema as advertised to
// the model, and the implementation invoked when the model calls it.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters json.RawMessage
	Call       Implementation
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is an immutable name-to-definition table, built once at session
// construction and shared read-only across concurrent dispatches.
type Registry struct {
	defs  map[string]Definition
	names []string
}

// NewRegistry builds a registry from definitions. Duplicate or empty names
// and nil implementations are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, &llm.ValidationError{Field: "name", Message: "tool definition missing name"}
		}
		if def.Call == nil {
			return nil, &llm.ValidationError{Field: def.Name, Message: "tool definition missing implementation"}
		}
		if _, exists := r.defs[def.Name]; exists {
			return nil, &llm.ValidationError{Field: def.Name, Message: "duplicate tool definition"}
		}
		r.defs[def.Name] = def
		r.names = append(r.names, def.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	return len(r.defs)
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Get looks up a definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Specs lists the registered functions in the form providers advertise to
// the model.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.names))
	for _, name := range r.names {
		def := r.defs[name]
		specs = append(specs, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return specs
}

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch executes a batch of tool calls concurrently and joins all of
// them. Results come back in call order regardless of completion order. A
// missing function name, invalid argument JSON, or any single
// implementation failure fails the whole batch.
func (r *Registry) Dispatch(ctx context.Context, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	// Validate the whole batch up front so no implementation runs when any
	// call is unresolvable.
	type boundCall struct {
		call llm.ToolCall
		def  Definition
		args json.RawMessage
	}
	bound := make([]boundCall, len(calls))
	for i, call := range calls {
		def, ok := r.defs[call.Name]
		if !ok {
			return nil, &llm.ValidationError{Field: call.Name, Message: "function not found"}
		}
		args := json.RawMessage(call.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if !json.Valid(args) {
			return nil, &llm.DecodeError{
				Message: fmt.Sprintf("tool %s received invalid argument JSON", call.Name),
			}
		}
		bound[i] = boundCall{call: call, def: def, args: args}
	}

	results := make([]llm.ToolResult, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i := range bound {
		wg.Add(1)
		go func(i int, bc boundCall) {
			defer wg.Done()
			value, err := invoke(ctx, bc.def, bc.args)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = llm.ToolResult{
				ID:    bc.call.ID,
				Name:  bc.call.Name,
				Value: value,
			}
		}(i, bound[i])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// invoke runs one implementation, converting a panic into a ToolError so a
// misbehaving callback fails the batch instead of the process.
func invoke(ctx context.Context, def Definition, args json.RawMessage) (value string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &llm.ToolError{Name: def.Name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err := def.Call(ctx, args)
	if err != nil {
		return "", &llm.ToolError{Name: def.Name, Err: err}
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return "", &llm.ToolError{Name: def.Name, Err: fmt.Errorf("result not encodable: %w", err)}
	}
	return string(encoded), nil
}
