package synth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/vk/langforge/internal/ctxlog"
	"resty.dev/v3"
)

// DefaultBaseURL is the Responses API endpoint used when none is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient speaks the Responses API over HTTP, using server-sent events
// for streaming calls.
type HTTPClient struct {
	rc *resty.Client
}

// NewHTTPClient builds a client for the configured endpoint.
func NewHTTPClient(opt HTTPOptions) *HTTPClient {
	if opt.BaseURL == "" {
		opt.BaseURL = DefaultBaseURL
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Minute
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opt.BaseURL, "/")).
		SetTimeout(opt.Timeout).
		SetHeader("Content-Type", "application/json")
	if opt.APIKey != "" {
		rc.SetAuthToken(opt.APIKey)
	}
	return &HTTPClient{rc: rc}
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	return c.rc.Close()
}

type apiTool struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Format      *apiFormat `json:"format,omitempty"`
}

type apiFormat struct {
	Type       string `json:"type"`
	Syntax     string `json:"syntax"`
	Definition string `json:"definition"`
}

type apiRequest struct {
	Model        string    `json:"model"`
	Instructions string    `json:"instructions,omitempty"`
	Input        string    `json:"input"`
	Stream       bool      `json:"stream,omitempty"`
	Tools        []apiTool `json:"tools,omitempty"`
	ToolChoice   string    `json:"tool_choice,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Status string    `json:"status"`
	Error  *apiError `json:"error"`
	Output []struct {
		Type    string `json:"type"`
		Input   string `json:"input"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func buildRequest(req Request, stream bool) apiRequest {
	body := apiRequest{
		Model:        req.Model,
		Instructions: req.Instructions,
		Input:        req.Input,
		Stream:       stream,
	}
	if g := req.Grammar; g != nil {
		syntax := g.Syntax
		if syntax == "" {
			syntax = "lark"
		}
		body.Tools = []apiTool{{
			Type:        "custom",
			Name:        g.ToolName,
			Description: g.Description,
			Format:      &apiFormat{Type: "grammar", Syntax: syntax, Definition: g.Definition},
		}}
		body.ToolChoice = "required"
	}
	return body
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Sending synthesis request.", "model", req.Model, "constrained", req.Grammar != nil)

	var out apiResponse
	res, err := c.rc.R().
		SetContext(ctx).
		SetBody(buildRequest(req, false)).
		SetResult(&out).
		Post("/responses")
	if err != nil {
		return "", fmt.Errorf("synthesis request failed: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("synthesis service returned %s: %s", res.Status(), strings.TrimSpace(res.String()))
	}
	if out.Error != nil {
		return "", fmt.Errorf("synthesis service error %s: %s", out.Error.Code, out.Error.Message)
	}

	var b strings.Builder
	for _, item := range out.Output {
		switch item.Type {
		case "custom_tool_call":
			b.WriteString(item.Input)
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					b.WriteString(part.Text)
				}
			}
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyOutput
	}
	return b.String(), nil
}

// Stream implements Client.
func (c *HTTPClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		logger := ctxlog.FromContext(ctx)
		logger.Debug("Opening synthesis stream.", "model", req.Model, "constrained", req.Grammar != nil)

		res, err := c.rc.R().
			SetContext(ctx).
			SetHeader("Accept", "text/event-stream").
			SetBody(buildRequest(req, true)).
			SetDoNotParseResponse(true).
			Post("/responses")
		if err != nil {
			yield("", fmt.Errorf("synthesis request failed: %w", err))
			return
		}
		body := res.RawResponse.Body
		defer body.Close()

		if res.IsError() {
			msg, _ := io.ReadAll(io.LimitReader(body, 64<<10))
			yield("", fmt.Errorf("synthesis service returned %s: %s", res.Status(), strings.TrimSpace(string(msg))))
			return
		}

		for fragment, err := range parseSSE(body) {
			if !yield(fragment, err) || err != nil {
				return
			}
		}
	}
}

type streamEvent struct {
	Type     string    `json:"type"`
	Delta    string    `json:"delta"`
	Message  string    `json:"message"`
	Error    *apiError `json:"error"`
	Response *struct {
		Error *apiError `json:"error"`
	} `json:"response"`
}

// parseSSE turns a Responses API event stream into text fragments. Events
// that carry no text are skipped; lines that are not valid JSON are ignored.
// Error events terminate the sequence, as does a stream that ends before
// the response is reported complete.
func parseSSE(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)

		var data strings.Builder
		completed := false
		flush := func() (bool, bool) {
			payload := strings.TrimSpace(data.String())
			data.Reset()
			if payload == "[DONE]" {
				completed = true
				return true, true
			}
			if payload == "" {
				return true, false
			}
			var ev streamEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				return true, false
			}
			switch ev.Type {
			case "response.output_text.delta", "response.custom_tool_call_input.delta":
				if ev.Delta == "" {
					return true, false
				}
				return yield(ev.Delta, nil), false
			case "error":
				msg := ev.Message
				if ev.Error != nil {
					msg = ev.Error.Message
				}
				yield("", fmt.Errorf("synthesis stream error: %s", msg))
				return false, true
			case "response.failed", "response.incomplete":
				msg := ev.Type
				if ev.Response != nil && ev.Response.Error != nil {
					msg = ev.Response.Error.Message
				}
				yield("", fmt.Errorf("synthesis stream failed: %s", msg))
				return false, true
			case "response.completed":
				completed = true
				return true, true
			}
			return true, false
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				more, done := flush()
				if !more || done {
					return
				}
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("synthesis stream interrupted: %w", err))
			return
		}
		if more, _ := flush(); !more || completed {
			return
		}
		yield("", ErrIncompleteStream)
	}
}
