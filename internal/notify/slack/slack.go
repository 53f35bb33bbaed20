// Package slack sends run reports to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/raven/internal/pipeline"
)

const (
	maxRationaleLen = 500
	// Slack caps a message at 50 blocks; leave room for the fixed ones.
	maxItems    = 40
	httpTimeout = 10 * time.Second
)

// Notifier sends run reports to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts a run report to the configured Slack webhook. Dry runs and an
// unset webhook URL are skipped.
func (n *Notifier) Send(ctx context.Context, r *pipeline.Report) error {
	if n.webhookURL == "" || r.DryRun {
		return nil
	}

	msg := buildMessage(r)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "report sent to slack", "included", len(r.Included))
	return nil
}

func buildMessage(r *pipeline.Report) map[string]any {
	blocks := []map[string]any{
		headerBlock(r),
		{"type": "divider"},
		summaryBlock(r),
		{"type": "divider"},
	}

	shown := r.Included
	if len(shown) > maxItems {
		shown = shown[:maxItems]
	}
	for _, a := range shown {
		blocks = append(blocks, itemBlock(a))
	}
	if more := len(r.Included) - len(shown); more > 0 {
		blocks = append(blocks, textSection(fmt.Sprintf("_…and %d more relevant item(s)_", more)))
	}

	if len(r.AnalysisFailed) > 0 {
		blocks = append(blocks, failedBlock(r))
	}

	blocks = append(blocks, contextBlock(r))
	return map[string]any{"blocks": blocks}
}

func headerBlock(r *pipeline.Report) map[string]any {
	text := fmt.Sprintf("%s Security news: %d relevant item(s)", statusEmoji(r), len(r.Included))
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func summaryBlock(r *pipeline.Report) map[string]any {
	s := r.Summary
	field := func(label string, v int) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s:* %d", label, v)}
	}
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			field("Collected", s.Collected),
			field("Too old", s.AgeFilteredOut),
			field("Duplicates", s.DeduplicatedAway),
			field("Relevant", s.Included),
			field("Filtered out", s.ExcludedByRelevance),
			field("Analysis failed", s.AnalysisFailed),
		},
	}
}

func itemBlock(a pipeline.Annotated) map[string]any {
	var b strings.Builder
	title := escape(a.Item.Title)
	if a.Item.URL != "" {
		fmt.Fprintf(&b, "*<%s|%s>*\n", a.Item.URL, title)
	} else {
		fmt.Fprintf(&b, "*%s*\n", title)
	}
	fmt.Fprintf(&b, "%s • %s", escape(a.Item.Source), a.Item.PublishedAt.UTC().Format("2006-01-02"))
	if v := a.Verdict; v != nil {
		fmt.Fprintf(&b, " • score %.2f", v.Score())
		if len(v.MatchedTerms) > 0 {
			fmt.Fprintf(&b, "\n*Matched:* %s", escape(strings.Join(v.MatchedTerms, ", ")))
		}
		if v.Rationale != "" {
			fmt.Fprintf(&b, "\n%s", escape(truncate(v.Rationale, maxRationaleLen)))
		}
	}
	return textSection(b.String())
}

func failedBlock(r *pipeline.Report) map[string]any {
	var b strings.Builder
	fmt.Fprintf(&b, "*Analysis failed, review manually (%d)*", len(r.AnalysisFailed))
	for i, a := range r.AnalysisFailed {
		if i == maxItems {
			fmt.Fprintf(&b, "\n…and %d more", len(r.AnalysisFailed)-maxItems)
			break
		}
		fmt.Fprintf(&b, "\n• %s (%s)", escape(a.Item.Title), escape(a.Item.Source))
	}
	return textSection(b.String())
}

func contextBlock(r *pipeline.Report) map[string]any {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = r.StartedAt
	}
	text := fmt.Sprintf("raven • threshold %.2f • %s", r.Threshold, ts.UTC().Format("2006-01-02 15:04 UTC"))
	if len(r.CollectorErrors) > 0 {
		names := make([]string, 0, len(r.CollectorErrors))
		for _, ce := range r.CollectorErrors {
			names = append(names, ce.Collector)
		}
		text += " • failed collectors: " + strings.Join(names, ", ")
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": text},
		},
	}
}

func textSection(text string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func statusEmoji(r *pipeline.Report) string {
	switch {
	case len(r.AnalysisFailed) > 0 || len(r.CollectorErrors) > 0:
		return "\U0001f7e1" // yellow circle
	case len(r.Included) > 0:
		return "\U0001f534" // red circle
	default:
		return "\U0001f7e2" // green circle
	}
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escape applies Slack's control-character escaping.
func escape(s string) string {
	return escaper.Replace(s)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit-3]) + "..."
}
