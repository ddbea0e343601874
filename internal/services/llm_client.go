package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient is the structured-generation collaborator. GenerateJSON returns
// an object conforming to the given JSON schema; Embed and TranscribeFile
// are only available on providers that expose those endpoints.
type LLMClient interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	GenerateText(ctx context.Context, system string, messages []ChatMessage) (string, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	TranscribeFile(ctx context.Context, audioPath string) (string, error)
}

// LLMClients holds one client per configured provider; For falls back to the
// default provider when the requested one was not configured.
type LLMClients struct {
	clients  map[types.LLMProvider]LLMClient
	fallback types.LLMProvider
}

func NewLLMClients(log *logger.Logger) (*LLMClients, error) {
	clients := map[types.LLMProvider]LLMClient{}

	openai, err := NewLLMClient(log, types.LLMProviderOpenAI)
	if err != nil {
		return nil, err
	}
	clients[types.LLMProviderOpenAI] = openai

	if os.Getenv("DEEPSEEK_API_KEY") != "" {
		deepseek, err := NewLLMClient(log, types.LLMProviderDeepSeek)
		if err != nil {
			return nil, err
		}
		clients[types.LLMProviderDeepSeek] = deepseek
	}

	return &LLMClients{clients: clients, fallback: types.LLMProviderOpenAI}, nil
}

func (c *LLMClients) For(provider types.LLMProvider) LLMClient {
	if client, ok := c.clients[provider]; ok {
		return client
	}
	return c.clients[c.fallback]
}

type llmClient struct {
	log        *logger.Logger
	provider   types.LLMProvider
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	sttModel   string
	httpClient *http.Client

	maxRetries int
}

func NewLLMClient(log *logger.Logger, provider types.LLMProvider) (LLMClient, error) {
	c := &llmClient{
		log:      log.With("service", "LLMClient", "provider", string(provider)),
		provider: provider,
	}

	switch provider {
	case types.LLMProviderDeepSeek:
		c.apiKey = os.Getenv("DEEPSEEK_API_KEY")
		if c.apiKey == "" {
			return nil, fmt.Errorf("missing DEEPSEEK_API_KEY")
		}
		c.baseURL = envOr("DEEPSEEK_BASE_URL", "https://api.deepseek.com")
		c.model = envOr("DEEPSEEK_MODEL", "deepseek-chat")
	default:
		c.apiKey = os.Getenv("OPENAI_API_KEY")
		if c.apiKey == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY")
		}
		c.baseURL = envOr("OPENAI_BASE_URL", "https://api.openai.com")
		c.model = envOr("OPENAI_MODEL", "gpt-4o-mini")
		c.embedModel = envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small")
		c.sttModel = envOr("OPENAI_STT_MODEL", "whisper-1")
	}

	timeoutSec := 180
	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	maxRetries := 4
	if v := os.Getenv("LLM_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	c.httpClient = &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
	c.maxRetries = maxRetries
	return c, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type llmHTTPError struct {
	StatusCode int
	Body       string
}

func (e *llmHTTPError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *llmHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

func (c *llmClient) doOnce(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &llmHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *llmClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var buf bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				return err
			}
		}

		resp, raw, err := c.doOnce(ctx, method, path, "application/json", &buf)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("llm decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("LLM request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// ---- Chat completions ----

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []ChatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *llmClient) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	req := chatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	if c.provider == types.LLMProviderDeepSeek {
		// DeepSeek has no json_schema format; embed the schema in the system
		// prompt and request a JSON object.
		schemaText, _ := json.Marshal(schema)
		req.Messages[0].Content = system + "\n\nRespond with a single JSON object matching this JSON schema exactly:\n" + string(schemaText)
		req.ResponseFormat = map[string]any{"type": "json_object"}
	} else {
		req.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
				"strict": true,
			},
		}
	}

	var resp chatCompletionResponse
	if err := c.doJSON(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	if resp.Choices[0].Message.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Choices[0].Message.Refusal)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, resp.Choices[0].Message.Content)
	}
	return obj, nil
}

func (c *llmClient) GenerateText(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	req := chatCompletionRequest{
		Model:       c.model,
		Messages:    append([]ChatMessage{{Role: "system", Content: system}}, messages...),
		Temperature: 0.7,
	}
	var resp chatCompletionResponse
	if err := c.doJSON(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ---- Embeddings ----

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *llmClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if c.embedModel == "" {
		return nil, fmt.Errorf("provider %s has no embeddings endpoint", c.provider)
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	req := embeddingsRequest{Model: c.embedModel, Input: inputs}
	var resp embeddingsResponse
	if err := c.doJSON(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return out, nil
}

// ---- Audio transcription (hosted engine) ----

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *llmClient) TranscribeFile(ctx context.Context, audioPath string) (string, error) {
	if c.sttModel == "" {
		return "", fmt.Errorf("provider %s has no transcription endpoint", c.provider)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := mw.WriteField("model", c.sttModel); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	_, raw, err := c.doOnce(ctx, "POST", "/v1/audio/transcriptions", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	var resp transcriptionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
