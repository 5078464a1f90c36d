package models

// ToolResultKind discriminates the closed set of tool outcomes.
type ToolResultKind string

const (
	// ToolResultOk is a successful execution.
	ToolResultOk ToolResultKind = "ok"

	// ToolResultError is a recoverable failure; the planner may inject
	// alternative steps.
	ToolResultError ToolResultKind = "error"

	// ToolResultAsk means the tool needs user input before it can proceed.
	ToolResultAsk ToolResultKind = "ask"

	// ToolResultStop is a non-recoverable failure that fails the plan.
	ToolResultStop ToolResultKind = "stop"
)

// ToolResult is the tagged outcome of a tool execution. The executor
// dispatches on Kind; tools construct results via Ok/ErrorResult/Ask/Stop.
type ToolResult struct {
	// Kind discriminates the variant.
	Kind ToolResultKind `json:"kind"`

	// Output is human-readable text produced by the tool.
	Output string `json:"output"`

	// ErrorMessage describes a recoverable failure (Kind == error).
	ErrorMessage string `json:"error_message,omitempty"`

	// StopReason explains a non-recoverable failure (Kind == stop).
	StopReason string `json:"stop_reason,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) *ToolResult {
	return &ToolResult{Kind: ToolResultOk, Output: output}
}

// ErrorResult builds a recoverable failure result.
func ErrorResult(output, errorMessage string) *ToolResult {
	return &ToolResult{Kind: ToolResultError, Output: output, ErrorMessage: errorMessage}
}

// Ask builds a result requesting user input.
func Ask(output string) *ToolResult {
	return &ToolResult{Kind: ToolResultAsk, Output: output}
}

// Stop builds a non-recoverable failure result.
func Stop(output, reason string) *ToolResult {
	return &ToolResult{Kind: ToolResultStop, Output: output, StopReason: reason}
}
