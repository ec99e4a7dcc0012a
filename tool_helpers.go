package cohere

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bitop-dev/cohere/internal/schema"
	"github.com/invopop/jsonschema"
)

type ToolSpec[Input any, Output any] struct {
	Description string
	// InputSchema overrides the schema reflected from Input.
	InputSchema json.RawMessage
	// ReturnDirect hands the tool's output straight back to the caller.
	ReturnDirect bool
	Execute      func(ctx context.Context, input Input, meta ToolMeta) (Output, error)
}

// NewTool creates a Tool with typed input/output. Unless spec.InputSchema is
// set, the input schema is reflected from Input (field names from json tags,
// descriptions from jsonschema tags). The returned Tool.Handler:
// - validates input against the schema
// - unmarshals into Input
// - calls Execute
//
// The conversation loop validates arguments before invoking a handler; the
// handler repeats the check so it is also safe to call directly. Compiled
// schemas are cached, so the second pass does not recompile.
func NewTool[Input any, Output any](name string, spec ToolSpec[Input, Output]) Tool {
	if name == "" {
		panic("tool name is required")
	}
	if spec.Execute == nil {
		panic(fmt.Sprintf("tool %q Execute is required", name))
	}
	inputSchema := spec.InputSchema
	if len(inputSchema) == 0 {
		var err error
		if inputSchema, err = ReflectSchema[Input](); err != nil {
			panic(fmt.Sprintf("tool %q: %v", name, err))
		}
	}
	return Tool{
		Name:         name,
		Description:  spec.Description,
		InputSchema:  inputSchema,
		ReturnDirect: spec.ReturnDirect,
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			if err := schema.Validate(inputSchema, input); err != nil {
				return nil, err
			}
			var v Input
			if err := json.Unmarshal(input, &v); err != nil {
				return nil, err
			}
			meta, _ := ToolMetaFrom(ctx)
			return spec.Execute(ctx, v, meta)
		},
	}
}

type DynamicToolSpec struct {
	Description  string
	InputSchema  json.RawMessage
	ReturnDirect bool
	Execute      func(ctx context.Context, input json.RawMessage, meta ToolMeta) (any, error)
}

// NewDynamicTool creates a Tool where input is left as json.RawMessage for runtime
// validation/casting. Like NewTool, the handler validates input itself when
// called directly.
func NewDynamicTool(name string, spec DynamicToolSpec) Tool {
	if name == "" {
		panic("tool name is required")
	}
	if spec.Execute == nil {
		panic(fmt.Sprintf("tool %q Execute is required", name))
	}
	return Tool{
		Name:         name,
		Description:  spec.Description,
		InputSchema:  spec.InputSchema,
		ReturnDirect: spec.ReturnDirect,
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			if err := schema.Validate(spec.InputSchema, input); err != nil {
				return nil, err
			}
			meta, _ := ToolMetaFrom(ctx)
			return spec.Execute(ctx, input, meta)
		},
	}
}

// ReflectSchema returns the JSON schema of T with every definition inlined.
func ReflectSchema[T any]() (json.RawMessage, error) {
	var t T
	s := (&jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}).Reflect(&t)
	s.Version = ""
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("reflect schema: %w", err)
	}
	return b, nil
}
