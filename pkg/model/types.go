package model

import (
	"fmt"
	"time"
)

// GenerateRequest represents a request to the generation API
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Suffix  string          `json:"suffix,omitempty"`
	Options GenerateOptions `json:"options"`
	Stream  bool            `json:"stream"`
}

// GenerateOptions carries sampling parameters for a generation request
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop,omitempty"`
}

// GenerateResponse represents one generation API response object. In the
// buffered case it is the whole response; in the streaming case each NDJSON
// line decodes to one of these with a partial Response and Done set only on
// the last.
type GenerateResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Response        string    `json:"response"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	TotalDuration   int64     `json:"total_duration,omitempty"`
	LoadDuration    int64     `json:"load_duration,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
}

// GenerateChunk represents an incremental fragment of generated text
type GenerateChunk struct {
	TextDelta string
	IsFinal   bool
}

// ModelInfo represents one model known to the inference server
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

// tagsResponse is the /api/tags payload
type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// APIError represents a non-2xx response from the inference server
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
