package synthesis

import "context"

// VoiceConfig is passed through opaquely to the provider.
type VoiceConfig struct {
	LanguageCode  string  // e.g. "en-US"
	VoiceName     string  // provider voice identifier
	AudioEncoding string  // MP3, LINEAR16, OGG_OPUS
	SpeakingRate  float64 // 1.0 = normal speed
}

// Client converts one chunk of text into audio bytes. Implementations are
// safe for concurrent use; the underlying provider handle is created once
// and shared across calls.
type Client interface {
	// Synthesize converts text to audio. Failures are *Error values
	// classified as rate-limited (retryable) or failed (terminal).
	Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)

	// Name returns the provider identifier for logs and metrics.
	Name() string
}

// ContentTypeFor maps an audio encoding selector to the MIME type of the
// bytes the providers return for it.
func ContentTypeFor(encoding string) string {
	switch encoding {
	case "LINEAR16":
		return "audio/wav"
	case "OGG_OPUS":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
