package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vedaaanggshetty/Aura/internal/utils"
)

// GenerationConfig carries the decoding parameters sent with every
// completion request. The values are fixed at construction time and are
// not request-configurable.
type GenerationConfig struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	Sampling          bool
	MaxPromptTokens   int
}

// DefaultGenerationConfig returns the decoding parameters Aura generates
// with. End-of-sequence handling belongs to the serving runtime.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxNewTokens:      200,
		Temperature:       0.6,
		TopP:              0.85,
		RepetitionPenalty: 1.15,
		Sampling:          true,
		MaxPromptTokens:   2048,
	}
}

// Service is the singleton-scoped inference dependency: one instance is
// initialised at process start and shared by all request handlers. It
// talks to an OpenAI-compatible text-completion endpoint serving the
// configured model.
type Service struct {
	primaryURL string
	backupURL  string
	baseURL    string
	apiKey     string
	model      string
	gen        GenerationConfig
	client     httpDoer
	logger     *zap.SugaredLogger
}

// NewService constructs a Service from cfg. Call Initialize before
// serving traffic and Shutdown during process teardown.
func NewService(cfg utils.InferenceConfig, logger *zap.SugaredLogger) *Service {
	primary := strings.TrimRight(strings.TrimSpace(cfg.PrimaryEndpoint), "/")
	backup := strings.TrimRight(strings.TrimSpace(cfg.BackupEndpoint), "/")

	return &Service{
		primaryURL: primary,
		backupURL:  backup,
		baseURL:    primary,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.ModelID),
		gen:        DefaultGenerationConfig(),
		client:     newHTTPClient(cfg.RequestTimeout),
		logger:     logger,
	}
}

// Initialize probes the primary endpoint and falls back to the backup
// when the primary is unreachable. The selected endpoint is used for the
// lifetime of the process.
func (s *Service) Initialize(ctx context.Context) error {
	if s.baseURL == "" {
		return fmt.Errorf("inference: endpoint is required")
	}

	primaryErr := s.probe(ctx, s.primaryURL)
	if primaryErr == nil {
		return nil
	}

	if s.backupURL != "" {
		if err := s.probe(ctx, s.backupURL); err == nil {
			s.logger.Warnf("primary inference endpoint unreachable, using backup: %v", primaryErr)
			s.baseURL = s.backupURL
			return nil
		}
	}

	return fmt.Errorf("inference: probe %s: %w", s.primaryURL, primaryErr)
}

// Shutdown releases idle connections held against the serving runtime.
func (s *Service) Shutdown() {
	if client, ok := s.client.(*http.Client); ok {
		client.CloseIdleConnections()
	}
}

func (s *Service) probe(ctx context.Context, baseURL string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return err
	}
	s.authorize(request)

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", response.StatusCode)
	}

	return nil
}

// Generate submits prompt with the fixed decoding parameters and returns
// the full decoded text: the prompt followed by the model continuation.
// Upstream failures are wrapped and propagated as-is; there are no
// retries in the request path.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	payload := completionRequest{
		Model:                s.model,
		Prompt:               prompt,
		MaxTokens:            s.gen.MaxNewTokens,
		Temperature:          s.gen.Temperature,
		TopP:                 s.gen.TopP,
		RepetitionPenalty:    s.gen.RepetitionPenalty,
		DoSample:             s.gen.Sampling,
		TruncatePromptTokens: s.gen.MaxPromptTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	endpoint := s.baseURL + "/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	s.authorize(request)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("call completion api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", buildAPIError(response.StatusCode, respBody)
	}

	var apiResp completionResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", fmt.Errorf("completion error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}

	return prompt + apiResp.Choices[0].Text, nil
}

func (s *Service) authorize(request *http.Request) {
	if s.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
