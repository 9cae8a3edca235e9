package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/trial-match-server/internal/domain"
)

const (
	// DefaultLLMBaseURL targets the hosted inference endpoint
	DefaultLLMBaseURL = "https://api.cerebras.ai/v1"
	// DefaultLLMModel is used when configuration does not name one
	DefaultLLMModel = "llama-3.3-70b"
)

// LLMConfig represents configuration for the inference client
type LLMConfig struct {
	APIKey        string        `json:"-"`
	BaseURL       string        `json:"base_url"`
	Model         string        `json:"model"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   float64       `json:"temperature"`
	Timeout       time.Duration `json:"timeout"`
	RateLimit     int           `json:"rate_limit"` // requests per minute
	MaxRetries    int           `json:"max_retries"`
	MaxConcurrent int           `json:"max_concurrent"`
}

// LLMClient calls the hosted inference service for eligibility reasoning.
// Outbound requests pass a token-bucket rate limiter; patient data crosses
// this boundary only after SanitizePatientData.
type LLMClient struct {
	apiKey        string
	baseURL       string
	model         string
	maxTokens     int
	temperature   float64
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxRetries    int
	maxConcurrent int
	logger        *logrus.Logger
}

// NewLLMClient creates a new inference client
func NewLLMClient(config LLMConfig, logger *logrus.Logger) *LLMClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultLLMBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultLLMModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Temperature == 0 {
		config.Temperature = 0.1
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 60
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 5
	}

	return &LLMClient{
		apiKey:        config.APIKey,
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		model:         config.Model,
		maxTokens:     config.MaxTokens,
		temperature:   config.Temperature,
		httpClient:    &http.Client{Timeout: config.Timeout},
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RateLimit)), config.RateLimit),
		maxRetries:    config.MaxRetries,
		maxConcurrent: config.MaxConcurrent,
		logger:        logger,
	}
}

// Model returns the configured model identifier
func (c *LLMClient) Model() string {
	return c.model
}

// ChatMessage is one turn in a chat-completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatUsage is the token accounting reported by the inference service
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the full outcome of one chat completion
type ChatResult struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Usage        ChatUsage     `json:"usage"`
	ResponseTime time.Duration `json:"response_time"`
	RequestID    string        `json:"request_id"`
	Retries      int           `json:"retries"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage ChatUsage `json:"usage"`
}

// ChatCompletion sends a chat request and returns the first choice along with
// usage, finish reason, request id, elapsed time, and retry count.
func (c *LLMClient) ChatCompletion(ctx context.Context, messages []ChatMessage) (*ChatResult, error) {
	return c.complete(ctx, messages, c.maxTokens)
}

func (c *LLMClient) complete(ctx context.Context, messages []ChatMessage, maxTokens int) (*ChatResult, error) {
	if c.apiKey == "" {
		return nil, &LLMError{Kind: KindAuthentication, Err: fmt.Errorf("api key not configured")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, &LLMError{Kind: KindOther, Err: err}
	}

	start := time.Now()
	attempts := 0
	var result *ChatResult
	err = Retry(ctx, c.maxRetries, func(ctx context.Context, attempt int) error {
		attempts++
		r, opErr := c.doChat(ctx, body, attempt)
		if opErr != nil {
			return opErr
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.ResponseTime = time.Since(start)
	result.Retries = attempts - 1

	c.logger.WithFields(logrus.Fields{
		"api":          "llm",
		"model":        result.Model,
		"duration_ms":  result.ResponseTime.Milliseconds(),
		"total_tokens": result.Usage.TotalTokens,
		"retries":      result.Retries,
	}).Debug("Chat completion succeeded")

	return result, nil
}

// doChat performs one attempt and classifies the outcome for the retry loop
func (c *LLMClient) doChat(ctx context.Context, body []byte, attempt int) (*ChatResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &LLMError{Kind: KindOther, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, RetryAfter(Backoff(attempt), &LLMError{Kind: KindTimeout, Err: err})
		}
		return nil, &LLMError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, &LLMError{Kind: KindNetwork, Err: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		// Credentials cannot improve on retry
		return nil, &LLMError{Kind: KindAuthentication, Status: resp.StatusCode, Snippet: bodySnippet(respBody)}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.WithFields(logrus.Fields{
			"api":         "llm",
			"retry_after": wait.Seconds(),
			"attempt":     attempt,
		}).Warn("LLM rate limit hit")
		return nil, RetryAfter(wait, &LLMError{Kind: KindRateLimit, Status: resp.StatusCode, RetryAfter: wait})
	case resp.StatusCode >= 500:
		return nil, RetryAfter(Backoff(attempt), &LLMError{Kind: KindOther, Status: resp.StatusCode, Snippet: bodySnippet(respBody)})
	default:
		return nil, &LLMError{Kind: KindValidation, Status: resp.StatusCode, Snippet: bodySnippet(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &LLMError{Kind: KindOther, Snippet: bodySnippet(respBody), Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &LLMError{Kind: KindOther, Err: fmt.Errorf("response contained no choices")}
	}

	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return &ChatResult{
		Content:      parsed.Choices[0].Message.Content,
		Model:        model,
		FinishReason: parsed.Choices[0].FinishReason,
		Usage:        parsed.Usage,
		RequestID:    parsed.ID,
	}, nil
}

// compatibilitySystemPrompt instructs the model to evaluate eligibility
// criterion by criterion with an auditable verdict structure.
const compatibilitySystemPrompt = `You are a clinical trial eligibility analyst. ` +
	`Evaluate the patient against each eligibility criterion of the trial. ` +
	`For every criterion state PASS or FAIL with a one-line justification. ` +
	`Then give an overall compatibility percentage (0-100), a short reasoning ` +
	`summary, a recommendation (eligible, ineligible, or requires clinical review), ` +
	`and concrete next steps. Base every judgment only on the data provided; ` +
	`where data is missing, say so instead of guessing.`

// assessmentMaxTokens bounds the per-candidate eligibility assessment reply
const assessmentMaxTokens = 1500

// AnalyzePatientTrialCompatibility asks the model to evaluate one
// patient/trial pair. The patient record is sanitized here before the prompt
// is assembled; callers pass the raw field map.
func (c *LLMClient) AnalyzePatientTrialCompatibility(ctx context.Context, patientData map[string]interface{}, trial *domain.Trial) (*ChatResult, error) {
	sanitized := SanitizePatientData(patientData)

	patientJSON, err := json.MarshalIndent(sanitized, "", "  ")
	if err != nil {
		return nil, &LLMError{Kind: KindOther, Err: err}
	}

	var prompt strings.Builder
	prompt.WriteString("Patient profile:\n")
	prompt.Write(patientJSON)
	prompt.WriteString("\n\nTrial: ")
	prompt.WriteString(trial.NCTID)
	prompt.WriteString(" - ")
	prompt.WriteString(trial.Title)
	if trial.BriefSummary != "" {
		prompt.WriteString("\nSummary: ")
		prompt.WriteString(trial.BriefSummary)
	}
	if len(trial.Conditions) > 0 {
		prompt.WriteString("\nConditions studied: ")
		prompt.WriteString(strings.Join(trial.Conditions, ", "))
	}
	writeCriteria(&prompt, "Inclusion criteria", trial.Eligibility.Inclusion)
	writeCriteria(&prompt, "Exclusion criteria", trial.Eligibility.Exclusion)
	if trial.Eligibility.RawText != "" && len(trial.Eligibility.Inclusion) == 0 && len(trial.Eligibility.Exclusion) == 0 {
		prompt.WriteString("\nEligibility criteria (unstructured):\n")
		prompt.WriteString(trial.Eligibility.RawText)
	}

	return c.complete(ctx, []ChatMessage{
		{Role: "system", Content: compatibilitySystemPrompt},
		{Role: "user", Content: prompt.String()},
	}, assessmentMaxTokens)
}

// writeCriteria appends a numbered criteria section to the prompt
func writeCriteria(b *strings.Builder, heading string, criteria []string) {
	if len(criteria) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(heading)
	b.WriteString(":\n")
	for i, criterion := range criteria {
		fmt.Fprintf(b, "%d. %s\n", i+1, criterion)
	}
}

// BatchItem pairs one trial's analysis with its outcome. Failed items carry
// an error value in place of a result; one failure never aborts the batch.
type BatchItem struct {
	Trial    *domain.Trial
	Analysis *ChatResult
	Err      error
}

// BatchAnalyze evaluates a patient against many trials with bounded
// concurrency. Results are positionally aligned with the input slice. A
// cancelled context returns the error and discards partial results.
func (c *LLMClient) BatchAnalyze(ctx context.Context, patientData map[string]interface{}, trials []*domain.Trial) ([]BatchItem, error) {
	results := make([]BatchItem, len(trials))
	sem := make(chan struct{}, c.maxConcurrent)
	done := make(chan int, len(trials))

	for i, trial := range trials {
		go func(idx int, t *domain.Trial) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = BatchItem{Trial: t, Err: ctx.Err()}
				done <- idx
				return
			}
			defer func() { <-sem }()

			analysis, err := c.AnalyzePatientTrialCompatibility(ctx, patientData, t)
			results[idx] = BatchItem{Trial: t, Analysis: analysis, Err: err}
			done <- idx
		}(i, trial)
	}

	for range trials {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}
