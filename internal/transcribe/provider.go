package transcribe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/config"
)

// AudioRef identifies the audio handed to a Provider. Ingest always fills
// Bytes and also sets Path when the storage backend has a local copy
// (local/tiered); S3-only storage yields Bytes alone. Providers read Bytes
// when it is non-nil and Path otherwise; WorkerPool's sox pass swaps in a
// processed Path and clears Bytes (spec.md §4.2 "Selection rule").
type AudioRef struct {
	Path  string
	Bytes []byte
	Ext   string // without the leading dot, e.g. "wav"
}

// Provider is the single abstraction every transcription mode implements:
// transcribe(audio_ref) -> text|error (spec.md §4.2).
type Provider interface {
	Transcribe(ctx context.Context, ref AudioRef) (string, error)
	Close() error
}

// NewProvider builds the Provider selected by cfg.TranscriptionMode.
func NewProvider(cfg *config.Config, log zerolog.Logger) (Provider, error) {
	switch cfg.TranscriptionMode {
	case "local":
		if cfg.LocalASRCommand == "" {
			return nil, fmt.Errorf("transcribe: TRANSCRIPTION_MODE=local requires LOCAL_ASR_COMMAND")
		}
		return NewLocalProvider(cfg.LocalASRCommand, cfg.LocalASRConcurrency, log)
	case "remote":
		if cfg.FasterWhisperServerURL == "" {
			return nil, fmt.Errorf("transcribe: TRANSCRIPTION_MODE=remote requires FASTER_WHISPER_SERVER_URL")
		}
		return NewRemoteProvider(cfg.FasterWhisperServerURL, cfg.WhisperModel, cfg.RemoteTranscribeTimeout), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("transcribe: TRANSCRIPTION_MODE=openai requires OPENAI_API_KEY")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.WhisperModel, cfg.RemoteTranscribeTimeout), nil
	case "icad":
		if cfg.ICADURL == "" {
			return nil, fmt.Errorf("transcribe: TRANSCRIPTION_MODE=icad requires ICAD_URL")
		}
		return NewICADProvider(cfg.ICADURL, cfg.ICADAPIKey, cfg.ICADProfile, cfg.RemoteTranscribeTimeout), nil
	default:
		return nil, fmt.Errorf("transcribe: unknown TRANSCRIPTION_MODE %q", cfg.TranscriptionMode)
	}
}
