package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const googleTTSURL = "https://texttospeech.googleapis.com/v1/text:synthesize"

// GoogleClient implements Client using the Google Cloud Text-to-Speech
// REST API.
type GoogleClient struct {
	apiKey string
	apiURL string

	timeout time.Duration

	// The http.Client is built once on first use and shared by all
	// concurrent synthesis calls.
	initClient sync.Once
	httpClient *http.Client
}

// NewGoogleClient creates a Google Cloud TTS client.
func NewGoogleClient(apiKey string, timeout time.Duration) *GoogleClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GoogleClient{
		apiKey:  apiKey,
		apiURL:  googleTTSURL,
		timeout: timeout,
	}
}

// Name returns the provider identifier.
func (c *GoogleClient) Name() string {
	return "google"
}

func (c *GoogleClient) client() *http.Client {
	c.initClient.Do(func() {
		c.httpClient = &http.Client{Timeout: c.timeout}
	})
	return c.httpClient
}

// googleRequest mirrors the v1 text:synthesize body.
type googleRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
	} `json:"audioConfig"`
}

type googleResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize converts one chunk of text into audio bytes.
func (c *GoogleClient) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	var reqBody googleRequest
	reqBody.Input.Text = text
	reqBody.Voice.LanguageCode = voice.LanguageCode
	reqBody.Voice.Name = voice.VoiceName
	reqBody.AudioConfig.AudioEncoding = voice.AudioEncoding
	reqBody.AudioConfig.SpeakingRate = voice.SpeakingRate

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s?key=%s", c.apiURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
		if isGoogleRateLimit(resp.StatusCode, string(respBody)) {
			return nil, NewRateLimited(c.Name(), apiErr)
		}
		return nil, NewFailed(c.Name(), apiErr)
	}

	var decoded googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to decode response: %w", err))
	}

	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to decode audio content: %w", err))
	}
	if len(audio) == 0 {
		return nil, NewFailed(c.Name(), fmt.Errorf("provider returned empty audio"))
	}

	return audio, nil
}

// isGoogleRateLimit recognizes quota and throttling responses. Google
// reports these as HTTP 429 with status RESOURCE_EXHAUSTED.
func isGoogleRateLimit(statusCode int, body string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(body, "RESOURCE_EXHAUSTED") ||
		strings.Contains(body, "rateLimitExceeded") ||
		strings.Contains(body, "quotaExceeded")
}
