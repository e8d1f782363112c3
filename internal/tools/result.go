package tools

import (
	"github.com/jetlinks-ai/aistaff/internal/artifacts"
)

// Result is the unified return of one tool dispatch.
type Result struct {
	Tool    string `json:"tool"`
	ForLLM  string `json:"for_llm"`  // truncated string fed back to the model
	IsError bool   `json:"is_error"` // marks a structured tool error
	Err     string `json:"error,omitempty"`

	// Payload is the handler's typed result before truncation; nil on error.
	Payload any `json:"-"`

	// Artifacts registered by the handler during this dispatch.
	Artifacts []*artifacts.Record `json:"-"`
}

func errorResult(tool, msg string) *Result {
	return &Result{Tool: tool, ForLLM: msg, IsError: true, Err: msg}
}

// artifactCarrier is implemented by handler results that registered files;
// the registry lifts them into Result.Artifacts.
type artifactCarrier interface {
	artifactRecords() []*artifacts.Record
}
