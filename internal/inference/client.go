package inference

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// newHTTPClient builds an HTTP client with the given timeout. A
// non-positive duration leaves the client unbounded: generation time is
// governed by the request context alone.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return &http.Client{}
	}
	return &http.Client{Timeout: timeout}
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

func decodeAPIError(body []byte) *apiError {
	if len(body) == 0 {
		return nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

func buildAPIError(statusCode int, body []byte) error {
	if apiErr := decodeAPIError(body); apiErr != nil {
		if apiErr.Code != "" && apiErr.Message != "" {
			return fmt.Errorf("inference api error (%d, %s): %s", statusCode, apiErr.Code, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("inference api error (%d): %s", statusCode, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("inference api error (%d, %s)", statusCode, apiErr.Code)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("inference api error (%d): %s", statusCode, snippet)
}

type completionRequest struct {
	Model                string  `json:"model"`
	Prompt               string  `json:"prompt"`
	MaxTokens            int     `json:"max_tokens"`
	Temperature          float64 `json:"temperature"`
	TopP                 float64 `json:"top_p"`
	RepetitionPenalty    float64 `json:"repetition_penalty,omitempty"`
	DoSample             bool    `json:"do_sample"`
	TruncatePromptTokens int     `json:"truncate_prompt_tokens,omitempty"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Choices []completionChoice `json:"choices"`
	Error   *apiError          `json:"error,omitempty"`
}
