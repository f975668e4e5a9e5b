// Package classify turns a free-text call summary into a short chief complaint.
// A language model endpoint is asked first; any failure degrades to Fallback.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dispatch-board/backend/internal/upstream"
	log "github.com/sirupsen/logrus"
)

const serviceName = "classifier"

const systemPrompt = "You are an emergency dispatch assistant. Reply with the patient's chief " +
	"complaint in at most six words, using standard EMS terminology. No punctuation, no explanation."

// Source records where a chief complaint came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Result is a classified summary.
type Result struct {
	ChiefComplaint string `json:"chiefComplaint"`
	Source         Source `json:"source"`
}

// Options configures a Classifier.
type Options struct {
	Endpoint          string // full chat completions URL
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxFallbackLength int
}

// Classifier calls an OpenAI-compatible chat completions endpoint.
type Classifier struct {
	endpoint    string
	apiKey      string
	model       string
	maxFallback int
	httpClient  *http.Client
	log         *log.Entry
}

// New creates a classifier. Without an endpoint every call uses the fallback.
func New(opts Options) *Classifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Classifier{
		endpoint:    opts.Endpoint,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxFallback: opts.MaxFallbackLength,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log.WithField("component", "classify"),
	}
}

// Classify never fails: model errors are logged and the fallback is returned.
func (c *Classifier) Classify(ctx context.Context, summary string) Result {
	if strings.TrimSpace(summary) == "" {
		return Result{ChiefComplaint: DefaultComplaint, Source: SourceFallback}
	}

	complaint, err := c.ask(ctx, summary)
	if err != nil {
		c.log.WithError(err).WithField("kind", upstream.KindOf(err)).Warn("classification failed, using fallback")
		return Result{ChiefComplaint: Fallback(summary, c.maxFallback), Source: SourceFallback}
	}
	return Result{ChiefComplaint: complaint, Source: SourceModel}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Classifier) ask(ctx context.Context, summary string) (string, error) {
	if c.endpoint == "" {
		return "", upstream.Configuration(serviceName, "endpoint is not configured")
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: summary},
		},
		MaxTokens: 20,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", upstream.Configuration(serviceName, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", upstream.FromTransport(serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", upstream.FromResponse(serviceName, resp)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	complaint := cleanCompletion(out.Choices[0].Message.Content)
	if complaint == "" {
		return "", errors.New("completion is empty")
	}
	return complaint, nil
}

func cleanCompletion(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'.`)
	return strings.TrimSpace(s)
}
