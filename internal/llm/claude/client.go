// Package claude implements relevance.Backend on the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/relevance"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
	requestTimeout   = 120 * time.Second
)

// messageAPI is the subset of the SDK used here, narrowed for tests.
type messageAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client implements relevance.Backend using the Anthropic SDK.
type Client struct {
	messages  messageAPI
	model     string
	maxTokens int64
	logger    log.Logger

	// OnUsage, when set, receives token usage after every successful call.
	OnUsage func(inputTokens, outputTokens int64)
}

// New creates a Claude backend with the given API key and model name.
func New(apiKey, model string, maxTokens int, logger log.Logger) *Client {
	sdk := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(requestTimeout),
	)
	return newClient(&sdk.Messages, model, maxTokens, logger)
}

func newClient(api messageAPI, model string, maxTokens int, logger log.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		messages:  api,
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Evaluate sends the rendered prompt and parses the JSON verdict out of the
// reply.
func (c *Client) Evaluate(ctx context.Context, req *relevance.Request) (*relevance.Evaluation, error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	c.logger.Info(ctx, "llm response",
		"stage", req.Stage.String(),
		"item_id", req.Item.ID,
		"stop_reason", string(msg.StopReason),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)
	if c.OnUsage != nil {
		c.OnUsage(msg.Usage.InputTokens, msg.Usage.OutputTokens)
	}

	return fromSDKMessage(msg)
}

// fromSDKMessage extracts the evaluation from the text blocks of a reply.
func fromSDKMessage(msg *anthropic.Message) (*relevance.Evaluation, error) {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("malformed response: no text content (stop_reason %s)", msg.StopReason)
	}
	return parseEvaluation(text.String())
}

type reply struct {
	Score        *float64 `json:"score"`
	MatchedTerms []string `json:"matched_terms"`
	Rationale    string   `json:"rationale"`
}

var errNoJSON = errors.New("malformed response: no JSON object")

// parseEvaluation decodes the first JSON object found in text. Models
// sometimes wrap the object in prose or code fences.
func parseEvaluation(text string) (*relevance.Evaluation, error) {
	raw, ok := firstObject(text)
	if !ok {
		return nil, errNoJSON
	}

	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if r.Score == nil {
		return nil, errors.New("malformed response: missing score")
	}
	if *r.Score < 0 || *r.Score > 1 {
		return nil, fmt.Errorf("malformed response: score %v outside [0,1]", *r.Score)
	}
	return &relevance.Evaluation{
		Score:        *r.Score,
		MatchedTerms: r.MatchedTerms,
		Rationale:    strings.TrimSpace(r.Rationale),
	}, nil
}

// firstObject returns the first balanced {...} in s, honouring strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
