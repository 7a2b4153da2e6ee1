package synthesis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AzureClient implements Client using the Azure Speech REST API.
type AzureClient struct {
	subscriptionKey string
	apiURL          string

	timeout time.Duration

	initClient sync.Once
	httpClient *http.Client
}

// NewAzureClient creates an Azure Speech client for the given region.
func NewAzureClient(subscriptionKey, region string, timeout time.Duration) *AzureClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AzureClient{
		subscriptionKey: subscriptionKey,
		apiURL:          fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
		timeout:         timeout,
	}
}

// Name returns the provider identifier.
func (c *AzureClient) Name() string {
	return "azure"
}

func (c *AzureClient) client() *http.Client {
	c.initClient.Do(func() {
		c.httpClient = &http.Client{Timeout: c.timeout}
	})
	return c.httpClient
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// buildSSML wraps the chunk text in the SSML envelope Azure requires.
func buildSSML(text string, voice VoiceConfig) string {
	rate := voice.SpeakingRate
	if rate <= 0 {
		rate = 1.0
	}
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><prosody rate='%.2f'>%s</prosody></voice></speak>`,
		voice.LanguageCode, voice.LanguageCode, voice.VoiceName, rate, ssmlEscaper.Replace(text),
	)
}

// outputFormatFor maps the opaque encoding selector to Azure's header value.
func outputFormatFor(encoding string) string {
	switch encoding {
	case "LINEAR16":
		return "riff-24khz-16bit-mono-pcm"
	case "OGG_OPUS":
		return "ogg-24khz-16bit-mono-opus"
	default:
		return "audio-24khz-48kbitrate-mono-mp3"
	}
}

// Synthesize converts one chunk of text into audio bytes.
func (c *AzureClient) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	ssml := buildSSML(text, voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(ssml))
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("X-Microsoft-OutputFormat", outputFormatFor(voice.AudioEncoding))
	req.Header.Set("User-Agent", "tts-pipeline")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, NewRateLimited(c.Name(), apiErr)
		}
		return nil, NewFailed(c.Name(), apiErr)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewFailed(c.Name(), fmt.Errorf("failed to read audio response: %w", err))
	}
	if len(audio) == 0 {
		return nil, NewFailed(c.Name(), fmt.Errorf("provider returned empty audio"))
	}

	return audio, nil
}
