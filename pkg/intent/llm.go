package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPromptTemplate = `You are an intent parser for a SQL cluster management system.
Return STRICT JSON ONLY (no prose). Choose one of these operations:
%s

Output JSON schema:
{
  "operation": "<one of above>",
  "confidence": <0.0..1.0>,
  "arguments": {
    "cluster_id": "<cluster identifier>",
    "group_id": "<group identifier>",
    "procedure_name": "<procedure name>",
    "table_name": "<table name>",
    "new_name": "<new display name>",
    "name": "<display name>",
    "target_cluster_id": "<target cluster>",
    "trash_index": <integer index>,
    "force_new_group": <true|false>
  }
}

Rules:
- Omit arguments that do not apply.
- Normalize identifiers: remove brackets, quotes, backticks.
- If user asks to rename, extract original name and new name.
- If user asks to move, extract source and target.
- If unclear, guess the most likely operation and set confidence <= 0.65.
- Never include commentary; return only valid JSON.`

// Config holds the settings for the LLM-backed classifier.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Classifier sends commands to an OpenAI-compatible endpoint and falls
// back to the keyword heuristic on any failure.
type Classifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClassifier creates the LLM-backed classifier. A nil return with nil
// error means no endpoint is configured and callers should use
// ClassifyHeuristic directly.
func NewClassifier(cfg Config, logger *zap.Logger) (*Classifier, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required when an endpoint is set")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Classifier{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger.Named("intent"),
	}, nil
}

// Classify parses one command. The model response is treated as untrusted:
// it is decoded defensively, sanitized, and replaced by the heuristic
// answer whenever it is unusable.
func (c *Classifier) Classify(ctx context.Context, prompt string) *Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPromptTemplate, strings.Join(Operations, "\n"))},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Warn("llm classification failed, using heuristic", zap.Error(err))
		return ClassifyHeuristic(prompt)
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("llm returned no choices, using heuristic")
		return ClassifyHeuristic(prompt)
	}

	r := decodeResponse(resp.Choices[0].Message.Content)
	if r == nil {
		c.logger.Warn("llm returned unparseable intent, using heuristic",
			zap.String("content", resp.Choices[0].Message.Content))
		return ClassifyHeuristic(prompt)
	}
	r.Source = SourceLLM
	sanitize(r)
	if r.Operation == OpUnknown {
		heuristic := ClassifyHeuristic(prompt)
		if heuristic.Operation != OpUnknown {
			return heuristic
		}
	}
	return r
}

// decodeResponse extracts the JSON object from a model reply, tolerating
// code fences and surrounding prose.
func decodeResponse(content string) *Result {
	s := content
	if strings.Contains(s, "```") {
		for _, part := range strings.Split(s, "```") {
			trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "json"))
			if strings.HasPrefix(trimmed, "{") {
				s = trimmed
				break
			}
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil
	}
	s = s[start : end+1]

	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil
	}
	if r.Arguments == nil {
		r.Arguments = map[string]any{}
	}
	return &r
}
