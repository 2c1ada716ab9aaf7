package transcribe

import (
	"net/http"
	"time"
)

// NewICADProvider builds an ICAD-mode provider: same shape as Remote with
// an additional profile selector field and bearer auth (spec.md §4.2 "ICAD").
func NewICADProvider(url, apiKey, profile string, timeout time.Duration) *RemoteProvider {
	p := NewRemoteProvider(url, "", timeout)
	if profile != "" {
		p.extraFields = map[string]string{"profile": profile}
	}
	if apiKey != "" {
		p.header = func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
	return p
}
