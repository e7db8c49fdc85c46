package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avrelja/sidecoach/core/llms"
)

const (
	chunkPrefix = "data:"
	endMessage  = "[DONE]"
)

// PromptWithStream prepares a streaming chat-completions call. The request is
// not sent until the returned stream is iterated.
func (c *Client) PromptWithStream(prompt string, opts ...PromptOption) *Stream {
	options := PromptOptions{Temperature: 0.3, MaxTokens: 512}
	for _, opt := range opts {
		opt(&options)
	}

	var messages []llms.Message
	if options.SystemPrompt != "" {
		messages = append(messages, llms.Message{Role: llms.MessageRoleSystem, Content: options.SystemPrompt})
	}
	messages = append(messages, llms.Message{Role: llms.MessageRoleUser, Content: prompt})

	return &Stream{client: c, messages: messages, options: options}
}

type PromptOptions struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

type PromptOption func(*PromptOptions)

func WithSystemPrompt(systemPrompt string) PromptOption {
	return func(o *PromptOptions) { o.SystemPrompt = systemPrompt }
}

func WithTemperature(temperature float64) PromptOption {
	return func(o *PromptOptions) { o.Temperature = temperature }
}

func WithMaxTokens(maxTokens int) PromptOption {
	return func(o *PromptOptions) {
		if maxTokens > 0 {
			o.MaxTokens = maxTokens
		}
	}
}

type Stream struct {
	client   *Client
	messages []llms.Message
	options  PromptOptions
}

var _ llms.Stream = (*Stream)(nil)

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestTime := time.Time{}
	markFirstToken := func(span trace.Span) {
		if requestTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestTime).Seconds()))
		span.AddEvent("received first chunk")
		requestTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		reqBody := requestBody{
			Model:       s.client.model,
			Messages:    s.messages,
			MaxTokens:   s.options.MaxTokens,
			Temperature: s.options.Temperature,
			Stream:      true,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", s.client.baseURL+"/chat/completions", bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				err = fmt.Errorf("error reading error body: %w", err)
				span.RecordError(err)
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := trimChunk(scanner.Text())
			markFirstToken(span)

			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			if len(responseBody.Choices) == 0 {
				continue
			}
			choice := responseBody.Choices[0]

			if choice.Delta.Content != "" {
				if !yield(StreamContentChunk{
					finishReason: choice.FinishReason,
					content:      choice.Delta.Content,
				}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string { return s.finishReason }
func (s StreamContentChunk) Content() string       { return s.content }
