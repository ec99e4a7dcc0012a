package chat

import (
	"maps"
	"slices"
)

type ResponseFormat struct {
	Type       string         `toml:"type"`
	JSONSchema map[string]any `toml:"json_schema"`
}

type Document struct {
	ID   string `toml:"id"`
	Data string `toml:"data"`
}

// Options is the request configuration. Pointer and slice fields left nil are
// unset and fall back to the merged-in defaults.
type Options struct {
	Model string `toml:"model"`

	Temperature      *float64 `toml:"temperature"`
	TopP             *float64 `toml:"p"`
	TopK             *int     `toml:"k"`
	MaxTokens        *int     `toml:"max_tokens"`
	StopSequences    []string `toml:"stop_sequences"`
	Seed             *int     `toml:"seed"`
	FrequencyPenalty *float64 `toml:"frequency_penalty"`
	PresencePenalty  *float64 `toml:"presence_penalty"`
	Logprobs         *bool    `toml:"logprobs"`

	SafetyMode     string          `toml:"safety_mode"`
	CitationMode   string          `toml:"citation_mode"`
	ToolChoice     string          `toml:"tool_choice"`
	StrictTools    *bool           `toml:"strict_tools"`
	ResponseFormat *ResponseFormat `toml:"response_format"`
	Documents      []Document      `toml:"documents"`

	Tools []Tool `toml:"-"`
	// ToolNames selects tools from the client registry by name.
	ToolNames []string `toml:"tool_names"`
	// InternalToolExecution disables tool execution when explicitly false; the
	// caller then receives the raw tool-call request.
	InternalToolExecution *bool          `toml:"internal_tool_execution"`
	ToolContext           map[string]any `toml:"tool_context"`

	// MaxToolRoundTrips bounds the number of tool executions in one call.
	MaxToolRoundTrips int `toml:"max_tool_round_trips"`
}

// ToolExecutionEnabled reports whether tools requested by the model should be
// run by the loop. Unset means enabled.
func (o Options) ToolExecutionEnabled() bool {
	return o.InternalToolExecution == nil || *o.InternalToolExecution
}

// MergeOptions combines defaults with runtime options. Runtime values win
// field by field when present. Tools with the same name are replaced by the
// runtime version, tool names are unioned and tool context maps are merged.
func MergeOptions(defaults, runtime Options) Options {
	out := defaults

	if runtime.Model != "" {
		out.Model = runtime.Model
	}
	out.Temperature = pick(runtime.Temperature, defaults.Temperature)
	out.TopP = pick(runtime.TopP, defaults.TopP)
	out.TopK = pick(runtime.TopK, defaults.TopK)
	out.MaxTokens = pick(runtime.MaxTokens, defaults.MaxTokens)
	out.Seed = pick(runtime.Seed, defaults.Seed)
	out.FrequencyPenalty = pick(runtime.FrequencyPenalty, defaults.FrequencyPenalty)
	out.PresencePenalty = pick(runtime.PresencePenalty, defaults.PresencePenalty)
	out.Logprobs = pick(runtime.Logprobs, defaults.Logprobs)
	out.StrictTools = pick(runtime.StrictTools, defaults.StrictTools)
	out.InternalToolExecution = pick(runtime.InternalToolExecution, defaults.InternalToolExecution)
	out.ResponseFormat = pick(runtime.ResponseFormat, defaults.ResponseFormat)

	if runtime.SafetyMode != "" {
		out.SafetyMode = runtime.SafetyMode
	}
	if runtime.CitationMode != "" {
		out.CitationMode = runtime.CitationMode
	}
	if runtime.ToolChoice != "" {
		out.ToolChoice = runtime.ToolChoice
	}
	if runtime.MaxToolRoundTrips > 0 {
		out.MaxToolRoundTrips = runtime.MaxToolRoundTrips
	}

	out.StopSequences = slices.Clone(defaults.StopSequences)
	if len(runtime.StopSequences) > 0 {
		out.StopSequences = slices.Clone(runtime.StopSequences)
	}
	out.Documents = slices.Clone(defaults.Documents)
	if len(runtime.Documents) > 0 {
		out.Documents = slices.Clone(runtime.Documents)
	}

	out.Tools = mergeTools(defaults.Tools, runtime.Tools)
	out.ToolNames = mergeToolNames(defaults.ToolNames, runtime.ToolNames)
	out.ToolContext = mergeToolContext(defaults.ToolContext, runtime.ToolContext)
	return out
}

func pick[T any](runtime, fallback *T) *T {
	if runtime != nil {
		return runtime
	}
	return fallback
}

func mergeTools(defaults, runtime []Tool) []Tool {
	if len(runtime) == 0 {
		return slices.Clone(defaults)
	}
	out := slices.Clone(runtime)
	for _, t := range defaults {
		if !slices.ContainsFunc(runtime, func(r Tool) bool { return r.Name == t.Name }) {
			out = append(out, t)
		}
	}
	return out
}

func mergeToolNames(defaults, runtime []string) []string {
	if len(defaults) == 0 && len(runtime) == 0 {
		return nil
	}
	out := make([]string, 0, len(defaults)+len(runtime))
	for _, n := range slices.Concat(runtime, defaults) {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func mergeToolContext(defaults, runtime map[string]any) map[string]any {
	if len(defaults) == 0 && len(runtime) == 0 {
		return nil
	}
	out := make(map[string]any, len(defaults)+len(runtime))
	maps.Copy(out, defaults)
	maps.Copy(out, runtime)
	return out
}
