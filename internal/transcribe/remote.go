package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// RemoteProvider calls an OpenAI-compatible /v1/audio/transcriptions
// endpoint with multipart `file` (and optional `model`); response `{text}`
// (spec.md §4.2 "Remote").
type RemoteProvider struct {
	url     string
	model   string
	client  *http.Client
	header  func(req *http.Request)
	extraFields map[string]string
}

// NewRemoteProvider builds a Remote-mode provider.
func NewRemoteProvider(url, model string, timeout time.Duration) *RemoteProvider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &RemoteProvider{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (p *RemoteProvider) Transcribe(ctx context.Context, ref AudioRef) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := "audio." + ref.Ext
	if filename == "." {
		filename = "audio"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if err := copyAudio(part, ref); err != nil {
		return "", err
	}

	if p.model != "" {
		w.WriteField("model", p.model)
	}
	for k, v := range p.extraFields {
		w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if p.header != nil {
		p.header(req)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out transcriptionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return out.Text, nil
}

func (p *RemoteProvider) Close() error { return nil }

// copyAudio writes ref's bytes (in-memory or on-disk) to w.
func copyAudio(w io.Writer, ref AudioRef) error {
	if ref.Bytes != nil {
		_, err := w.Write(ref.Bytes)
		return err
	}
	f, err := os.Open(ref.Path)
	if err != nil {
		return fmt.Errorf("transcribe: open audio file: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
