package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Enum        []interface{} `json:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
}

// HandlerFunc executes a tool call.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition is a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     HandlerFunc `json:"-"`
}

// Spec is the provider-facing description of a tool: name, description,
// and a JSON Schema for its arguments.
type Spec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Result is the outcome of a tool call. Failures are encoded in the
// value, never as a panic: Success false with Error text and a failure
// Kind the caller can route on.
type Result struct {
	Success   bool                   `json:"success"`
	Output    string                 `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Kind      Kind                   `json:"kind,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// OK builds a successful result.
func OK(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failed result with a failure class.
func Fail(kind Kind, msg string) Result {
	return Result{Success: false, Error: msg, Kind: kind}
}

const (
	defaultTimeout = 30 * time.Second
	maxOutputBytes = 10 * 1024
)

// Executor is the local tool registry. It validates arguments against
// generated JSON Schemas before running handlers and bounds every run
// with a timeout.
type Executor struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	order   []string
	timeout time.Duration
}

// New creates an empty executor with the default 30s run timeout.
func New() *Executor {
	return &Executor{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: defaultTimeout,
	}
}

// SetTimeout overrides the default per-call timeout.
func (e *Executor) SetTimeout(d time.Duration) {
	if d > 0 {
		e.mu.Lock()
		e.timeout = d
		e.mu.Unlock()
	}
}

// Register adds a tool. Registering an existing name replaces it.
func (e *Executor) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; !exists {
		e.order = append(e.order, def.Name)
	}
	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition, or nil when unknown.
func (e *Executor) Get(name string) *Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tools[name]
}

// Has reports whether a tool is registered.
func (e *Executor) Has(name string) bool {
	return e.Get(name) != nil
}

// Names returns registered tool names in registration order.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Count returns the number of registered tools.
func (e *Executor) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tools)
}

// Definitions returns the registered tools sorted by name, handlers
// included. The MCP server serves from this snapshot.
func (e *Executor) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Definition, 0, len(e.tools))
	for _, def := range e.tools {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Spec returns the provider-facing spec for one tool.
func (e *Executor) Spec(name string) (Spec, error) {
	def := e.Get(name)
	if def == nil {
		return Spec{}, Errorf(KindValidation, name, "tool not found")
	}
	return Spec{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: inputSchema(*def),
	}, nil
}

// Specs resolves provider-facing specs for a list of tool names.
func (e *Executor) Specs(names []string) ([]Spec, error) {
	if len(names) == 0 {
		return nil, nil
	}
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		spec, err := e.Spec(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Execute validates args against the tool's schema and runs its handler
// under the executor timeout. The returned Result always carries the
// outcome; Execute itself never panics.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) Result {
	start := time.Now()

	e.mu.RLock()
	tool := e.tools[name]
	schema := e.schemas[name]
	timeout := e.timeout
	e.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", name).Msg("Tool not found")
		return Fail(KindValidation, fmt.Sprintf("tool not found: %s", name))
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	if err := validateArgs(schema, args); err != nil {
		log.Error().Str("tool", name).Err(err).Msg("Argument validation failed")
		return Fail(KindValidation, fmt.Sprintf("argument validation failed: %v", err))
	}

	log.Debug().Str("tool", name).Msg("Executing tool")

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool panicked: %v", r)
			}
		}()
		out, err := tool.Handler(timeoutCtx, args)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- out
		}
	}()

	select {
	case out := <-resultChan:
		duration := time.Since(start)
		text, truncated := stringify(out)

		log.Debug().
			Str("tool", name).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return Result{
			Success:   true,
			Output:    text,
			Truncated: truncated,
			Metadata:  map[string]interface{}{"duration_ms": duration.Milliseconds()},
		}

	case err := <-errChan:
		duration := time.Since(start)

		log.Error().
			Str("tool", name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")

		kind := KindOf(err)
		if kind == "" {
			kind = KindApplication
		}
		return Result{
			Success:  false,
			Error:    err.Error(),
			Kind:     kind,
			Metadata: map[string]interface{}{"duration_ms": duration.Milliseconds()},
		}

	case <-timeoutCtx.Done():
		duration := time.Since(start)

		log.Error().
			Str("tool", name).
			Dur("duration", duration).
			Msg("Tool execution timeout")

		return Result{
			Success:  false,
			Error:    fmt.Sprintf("tool execution timeout after %v", timeout),
			Kind:     KindApplication,
			Metadata: map[string]interface{}{"duration_ms": duration.Milliseconds()},
		}
	}
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
	}
	return nil
}

// inputSchema builds the JSON Schema document for a tool's arguments.
func inputSchema(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		ps := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			ps["description"] = param.Description
		}
		if len(param.Enum) > 0 {
			ps["enum"] = param.Enum
		}
		if param.Default != nil {
			ps["default"] = param.Default
		}
		properties[param.Name] = ps
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(inputSchema(def)))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}

// stringify renders a handler's return value as text, truncating at the
// output limit. Maps and slices render as compact JSON.
func stringify(out interface{}) (string, bool) {
	var text string
	switch v := out.(type) {
	case nil:
		text = ""
	case string:
		text = v
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(b)
		}
	default:
		text = fmt.Sprintf("%v", v)
	}

	if len(text) <= maxOutputBytes {
		return text, false
	}

	log.Warn().
		Int("original", len(text)).
		Int("limit", maxOutputBytes).
		Msg("Tool output truncated")

	return text[:maxOutputBytes] + "\n... [output truncated]", true
}
