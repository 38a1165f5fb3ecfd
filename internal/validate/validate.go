// Package validate asks an LLM for a second opinion on parsed fee
// arrangements. Its findings are advisory and never block a sync.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/resilience"
	"github.com/sells-group/billing-sync/pkg/anthropic"
)

const systemPrompt = `You review fee arrangements parsed from a law firm billing tracker.
Each item has the original fee text and the milestones a rule-based parser extracted.
Report only real problems: a milestone missing from the parse, a wrong amount or
currency, an amount that is actually a year or a date, a long-stop date that does
not match the text, or milestone amounts that contradict the stated total.
Respond with JSON only: {"issues":[{"index":0,"severity":"error|warning","description":"...","suggestion":"..."}]}.
Return {"issues":[]} when the parse is correct.`

// Config tunes the validator.
type Config struct {
	Model       string
	MaxTokens   int64
	ChunkSize   int
	Concurrency int
	RPS         float64
	Retry       resilience.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-haiku-4-5-20251001"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RPS <= 0 {
		c.RPS = 2
	}
	return c
}

// Validator checks parsed fee arrangements in chunks.
type Validator struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Validator.
func New(client anthropic.Client, cfg Config) *Validator {
	cfg = cfg.withDefaults()
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "validate")
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = retryable
	}
	return &Validator{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency),
	}
}

type wireItem struct {
	Index        int      `json:"index"`
	CMNo         string   `json:"cm_no"`
	Engagement   string   `json:"engagement"`
	Text         string   `json:"text"`
	LongStopDate string   `json:"long_stop_date,omitempty"`
	Milestones   []wireMS `json:"milestones"`
}

type wireMS struct {
	Ordinal   string   `json:"ordinal"`
	Title     string   `json:"title"`
	Amount    *float64 `json:"amount,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	Percent   *float64 `json:"percent,omitempty"`
	Completed bool     `json:"completed"`
}

type wireIssue struct {
	Index       int    `json:"index"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// Validate submits items in chunks. A chunk that fails after retries is
// counted as unchecked; Validate only errors when no chunk succeeded.
func (v *Validator) Validate(ctx context.Context, items []model.ValidationItem) (*model.ValidationReport, error) {
	rep := &model.ValidationReport{Issues: []model.ValidationIssue{}}
	if len(items) == 0 {
		rep.Validated = true
		return rep, nil
	}

	type indexed struct {
		item  int
		issue model.ValidationIssue
	}
	var (
		mu       sync.Mutex
		firstErr error
		found    []indexed
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Concurrency)

	for start := 0; start < len(items); start += v.cfg.ChunkSize {
		chunk := items[start:min(start+v.cfg.ChunkSize, len(items))]
		g.Go(func() error {
			issues, err := v.checkChunk(gctx, start, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("validate: chunk failed", zap.Int("offset", start), zap.Int("items", len(chunk)), zap.Error(err))
				rep.Unchecked += len(chunk)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			rep.Checked += len(chunk)
			for _, wi := range issues {
				i := wi.Index - start
				if i < 0 || i >= len(chunk) {
					continue
				}
				found = append(found, indexed{item: wi.Index, issue: model.ValidationIssue{
					CMNo:            chunk[i].CMNo,
					EngagementTitle: chunk[i].EngagementTitle,
					Severity:        normalizeSeverity(wi.Severity),
					Description:     wi.Description,
					Suggestion:      wi.Suggestion,
				}})
			}
			return nil
		})
	}
	_ = g.Wait()

	// Chunks finish in any order; report issues in item order.
	sort.SliceStable(found, func(a, b int) bool { return found[a].item < found[b].item })
	for _, f := range found {
		rep.Issues = append(rep.Issues, f.issue)
	}

	if rep.Checked == 0 {
		return nil, eris.Wrap(firstErr, "validate: no items checked")
	}
	rep.Validated = rep.Unchecked == 0
	if firstErr != nil {
		rep.Error = firstErr.Error()
	}
	return rep, nil
}

func (v *Validator) checkChunk(ctx context.Context, offset int, chunk []model.ValidationItem) ([]wireIssue, error) {
	body, err := json.Marshal(toWire(offset, chunk))
	if err != nil {
		return nil, eris.Wrap(err, "validate: encode items")
	}
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       v.cfg.Model,
		MaxTokens:   v.cfg.MaxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: string(body)}},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, v.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := v.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return v.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(v.cfg.Model, "validate")

	var out struct {
		Issues []wireIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &out); err != nil {
		return nil, eris.Wrap(err, "validate: decode response")
	}
	return out.Issues, nil
}

func toWire(offset int, chunk []model.ValidationItem) []wireItem {
	out := make([]wireItem, len(chunk))
	for i, it := range chunk {
		w := wireItem{Index: offset + i, CMNo: it.CMNo, Engagement: it.EngagementTitle, Text: it.RawText, Milestones: []wireMS{}}
		if it.LongStopDate != nil {
			w.LongStopDate = it.LongStopDate.Format("2006-01-02")
		}
		for _, m := range it.Milestones {
			ms := wireMS{Ordinal: m.Ordinal, Title: m.Title, Amount: m.AmountValue, Completed: m.Completed}
			if m.AmountValue != nil {
				ms.Currency = string(m.AmountCurrency)
			}
			if m.IsPercent {
				ms.Percent = m.PercentValue
			}
			w.Milestones = append(w.Milestones, ms)
		}
		out[i] = w
	}
	return out
}

// retryable treats API overload, rate limiting and network faults as
// transient.
func retryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return "error"
	case "info":
		return "info"
	default:
		return "warning"
	}
}

// cleanJSON extracts the JSON object from a reply that may be wrapped in a
// markdown fence or prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

