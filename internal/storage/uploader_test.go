package storage

import (
	"testing"

	"github.com/rs/zerolog"
)

// These exercise Enqueue/Stop without ever calling Start, so no real S3
// client is needed — the worker goroutines that would call s3.Save are
// never launched.

func TestAsyncUploaderEnqueueDropsWhenFull(t *testing.T) {
	u := NewAsyncUploader(nil, 1, 2, zerolog.Nop())

	u.Enqueue("key1", []byte("a"), "audio/wav")
	if len(u.ch) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(u.ch))
	}

	// Buffer is full; this enqueue must not block and must be dropped.
	u.Enqueue("key2", []byte("b"), "audio/wav")
	if len(u.ch) != 1 {
		t.Fatalf("expected queue to stay at 1 after drop, got %d", len(u.ch))
	}
}

func TestAsyncUploaderEnqueueNoopAfterStop(t *testing.T) {
	u := NewAsyncUploader(nil, 4, 2, zerolog.Nop())
	u.Stop()

	u.Enqueue("key1", []byte("a"), "audio/wav")
	if len(u.ch) != 0 {
		t.Fatalf("expected no jobs queued after Stop, got %d", len(u.ch))
	}
}
