package transcribe

import (
	"net/http"
	"time"
)

const openAITranscriptionsURL = "https://api.openai.com/v1/audio/transcriptions"

// NewOpenAIProvider builds an OpenAI-mode provider: the hosted Whisper
// endpoint with bearer auth (spec.md §4.2 "OpenAI").
func NewOpenAIProvider(apiKey, model string, timeout time.Duration) *RemoteProvider {
	p := NewRemoteProvider(openAITranscriptionsURL, model, timeout)
	p.header = func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return p
}
