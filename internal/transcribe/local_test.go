package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// writeFakeASRScript creates a tiny shell child that speaks the
// newline-delimited JSON protocol: one {"ready":true} line, then one
// {"id":..., "transcription":...} reply per request line.
func writeFakeASRScript(t *testing.T, reply string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake_asr.sh")
	script := "#!/bin/sh\n" +
		"echo '{\"ready\":true}'\n" +
		"while IFS= read -r line; do\n" +
		"  id=$(echo \"$line\" | sed -n 's/.*\"id\":\"\\([^\"]*\\)\".*/\\1/p')\n" +
		"  echo \"{\\\"id\\\":\\\"$id\\\",\\\"transcription\\\":\\\"" + reply + "\\\"}\"\n" +
		"done\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ASR script: %v", err)
	}
	return path
}

func TestLocalProviderTranscribe(t *testing.T) {
	path := writeFakeASRScript(t, "shots fired on main street")
	p, err := NewLocalProvider("/bin/sh "+path, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := p.Transcribe(ctx, AudioRef{Bytes: []byte("plenty of bytes to pass the size floor")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "shots fired on main street" {
		t.Errorf("text = %q, want %q", text, "shots fired on main street")
	}
}

func TestLocalProviderConcurrentJobsMatchByID(t *testing.T) {
	path := writeFakeASRScript(t, "copy")
	p, err := NewLocalProvider("/bin/sh "+path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	defer p.Close()

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := p.Transcribe(ctx, AudioRef{Bytes: []byte("plenty of bytes to pass the size floor")})
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Transcribe: %v", err)
		}
	}
}
