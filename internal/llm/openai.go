package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	coorderrors "routa/internal/shared/errors"
	"routa/internal/shared/logging"
	id "routa/internal/shared/utils/id"
)

// OpenAI API compatible executor
type openaiExecutor struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
}

// ClientConfig configures an OpenAI-compatible executor.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// NewOpenAIExecutor constructs an executor that speaks the OpenAI-compatible
// chat completions API. BaseURL must end with "/" so endpoint joining keeps
// every path segment.
func NewOpenAIExecutor(model string, config ClientConfig) (Executor, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, coorderrors.BadInput("base URL is required for an OpenAI-compatible executor")
	}

	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	return &openaiExecutor{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    NormalizeBaseURL(config.BaseURL),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewLLMLogger("openai"),
		headers:    config.Headers,
	}, nil
}

func (c *openaiExecutor) Model() string {
	return c.model
}

func (c *openaiExecutor) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	endpoint := c.baseURL + "chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *openaiExecutor) buildPayload(req Request, stream bool) map[string]any {
	payload := map[string]any{
		"model":    c.model,
		"messages": convertMessages(req.Messages),
		"stream":   stream,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload["tools"] = req.Tools
		payload["tool_choice"] = "auto"
	}
	return payload
}

func (c *openaiExecutor) Complete(ctx context.Context, req Request) (*Response, error) {
	requestID := id.NewRequestID()
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	body, err := json.Marshal(c.buildPayload(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%s=== LLM Request ===", prefix)
	c.logger.Debug("%sURL: POST %schat/completions", prefix, c.baseURL)
	c.logger.Debug("%sModel: %s", prefix, c.model)

	httpReq, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, coorderrors.Upstream(err, "LLM request failed: "+err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("%s=== LLM Response ===", prefix)
	c.logger.Debug("%sStatus: %d %s", prefix, resp.StatusCode, resp.Status)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%sError Response Body: %s", prefix, string(respBody))
		return nil, coorderrors.Upstream(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			fmt.Sprintf("LLM returned HTTP %d", resp.StatusCode),
		)
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		return nil, coorderrors.Upstream(
			errors.New(oaiResp.Error.Message),
			fmt.Sprintf("%s: %s", oaiResp.Error.Type, oaiResp.Error.Message),
		)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, coorderrors.Upstream(errors.New("no choices in response"), "LLM returned an empty response. Please retry.")
	}

	choice := oaiResp.Choices[0]
	result := &Response{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			c.logger.Debug("%sFailed to parse tool call arguments: %v", prefix, err)
			continue
		}
		result.ToolCalls = append(result.ToolCalls, NativeToolCall{Name: tc.Function.Name, Arguments: args})
	}

	c.logger.Debug("%sStop Reason: %s, Content Length: %d chars, Tool Calls: %d",
		prefix, result.StopReason, len(result.Content), len(result.ToolCalls))

	return result, nil
}

// StreamComplete streams incremental completion deltas while constructing the
// final aggregated response.
func (c *openaiExecutor) StreamComplete(ctx context.Context, req Request, callbacks StreamCallbacks) (*Response, error) {
	requestID := id.NewRequestID()
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	body, err := json.Marshal(c.buildPayload(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%s=== LLM Streaming Request ===", prefix)
	c.logger.Debug("%sURL: POST %schat/completions", prefix, c.baseURL)
	c.logger.Debug("%sModel: %s", prefix, c.model)

	httpReq, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, coorderrors.Upstream(err, "LLM request failed: "+err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		c.logger.Debug("%sError Response Body: %s", prefix, string(respBody))
		return nil, coorderrors.Upstream(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			fmt.Sprintf("LLM returned HTTP %d", resp.StatusCode),
		)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	type toolAccumulator struct {
		name      string
		arguments strings.Builder
	}
	toolAccumulators := make(map[int]*toolAccumulator)
	var toolOrder []int

	var contentBuilder strings.Builder
	finishReason := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   string `json:"content"`
					ToolCalls []struct {
						Index    int `json:"index"`
						Function struct {
							Name      string `json:"name"`
							Arguments string `json:"arguments"`
						} `json:"function"`
					} `json:"tool_calls"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("%sFailed to decode stream chunk: %v", prefix, err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}
		if text := choice.Delta.Content; text != "" {
			contentBuilder.WriteString(text)
			if callbacks.OnDelta != nil {
				callbacks.OnDelta(text, false)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := toolAccumulators[tc.Index]
			if !ok {
				acc = &toolAccumulator{}
				toolAccumulators[tc.Index] = acc
				toolOrder = append(toolOrder, tc.Index)
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.arguments.WriteString(tc.Function.Arguments)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Debug("%sStream read error: %v", prefix, err)
		return nil, coorderrors.Upstream(err, "LLM stream read failed")
	}

	if callbacks.OnDelta != nil {
		callbacks.OnDelta("", true)
	}

	result := &Response{
		Content:    contentBuilder.String(),
		StopReason: finishReason,
	}
	for _, idx := range toolOrder {
		acc := toolAccumulators[idx]
		var args map[string]any
		if acc.arguments.Len() > 0 {
			if err := json.Unmarshal([]byte(acc.arguments.String()), &args); err != nil {
				c.logger.Debug("%sFailed to parse tool call arguments: %v", prefix, err)
			}
		}
		call := NativeToolCall{Name: acc.name, Arguments: args}
		result.ToolCalls = append(result.ToolCalls, call)
		if callbacks.OnNativeToolCall != nil {
			callbacks.OnNativeToolCall(call)
		}
	}

	c.logger.Debug("%sStop Reason: %s, Content Length: %d chars, Tool Calls: %d",
		prefix, result.StopReason, len(result.Content), len(result.ToolCalls))

	return result, nil
}

func convertMessages(msgs []Message) []map[string]any {
	result := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, map[string]any{"role": msg.Role, "content": msg.Content})
	}
	return result
}
