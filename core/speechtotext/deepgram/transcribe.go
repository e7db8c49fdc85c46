// Package deepgram transcribes finished utterances through Deepgram's
// prerecorded listen endpoint.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest/interfaces"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avrelja/sidecoach/core/audio"
	"github.com/avrelja/sidecoach/core/speechtotext"
)

const (
	defaultListenURL = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "multi"
)

type TranscriptionClient struct {
	apiKey    string
	listenURL string

	httpClient *http.Client
}

var _ speechtotext.Transcriber = (*TranscriptionClient)(nil)

type Option func(*TranscriptionClient)

// WithListenURL points the client at a different listen endpoint (primarily
// for tests).
func WithListenURL(listenURL string) Option {
	return func(c *TranscriptionClient) {
		if listenURL != "" {
			c.listenURL = listenURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *TranscriptionClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewTranscriptionClient(opts ...Option) (*TranscriptionClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	c := &TranscriptionClient{
		apiKey:     apiKey,
		listenURL:  defaultListenURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transcribe uploads the utterance as linear16 PCM and returns the top
// alternative's transcript, trimmed. An empty transcript is not an error;
// callers decide what to do with silence.
func (c *TranscriptionClient) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts ...speechtotext.TranscriptionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	options := speechtotext.TranscriptionOptions{Model: defaultModel, Language: defaultLanguage}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingFloat32})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", options.Model)
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	span.SetAttributes(
		attribute.String("request.model", options.Model),
		attribute.Float64("request.audio_duration", float64(len(samples))/float64(sampleRate)),
	)

	req, err := http.NewRequestWithContext(ctx, "POST", listenURL.String(), bytes.NewReader(audio.EncodeLinear16(samples)))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request to deepgram: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status from deepgram: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	var response api.PreRecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		err = fmt.Errorf("error unmarshalling deepgram response: %w", err)
		span.RecordError(err)
		return "", err
	}

	return topTranscript(response), nil
}

func topTranscript(response api.PreRecordedResponse) string {
	if response.Results == nil || len(response.Results.Channels) == 0 {
		return ""
	}
	alternatives := response.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(alternatives[0].Transcript)
}
