package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	failN    int // fail this many times before succeeding
	text     string
	closeErr error
}

func (f *fakeProvider) Transcribe(ctx context.Context, ref AudioRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return "", errors.New("transport error")
	}
	return f.text, nil
}

func (f *fakeProvider) Close() error { return f.closeErr }

func TestWorkerPoolRetriesTransportErrors(t *testing.T) {
	fp := &fakeProvider{failN: 2, text: "units on scene"}
	wp := NewWorkerPool(fp, 1, 10, time.Second, false, zerolog.Nop())
	wp.Start()
	defer wp.Stop()

	done := make(chan string, 1)
	ok := wp.Enqueue(Job{
		CallID: 1,
		Ref:    AudioRef{Bytes: []byte("not empty audio bytes here")},
		Complete: func(ctx context.Context, callID int64, text string) {
			done <- text
		},
	})
	if !ok {
		t.Fatal("Enqueue: queue unexpectedly full")
	}

	select {
	case text := <-done:
		if text != "units on scene" {
			t.Errorf("text = %q, want %q", text, "units on scene")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
	if fp.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", fp.calls)
	}
}

func TestWorkerPoolRejectsTinyAudio(t *testing.T) {
	fp := &fakeProvider{text: "should not be called"}
	wp := NewWorkerPool(fp, 1, 10, time.Second, false, zerolog.Nop())
	wp.Start()
	defer wp.Stop()

	done := make(chan string, 1)
	wp.Enqueue(Job{
		CallID: 2,
		Ref:    AudioRef{Bytes: []byte("tiny")},
		Complete: func(ctx context.Context, callID int64, text string) {
			done <- text
		},
	})

	select {
	case text := <-done:
		if text != "" {
			t.Errorf("text = %q, want empty transcription for undersized audio", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
	if fp.calls != 0 {
		t.Errorf("provider should never be called for undersized audio, got %d calls", fp.calls)
	}
}

func TestWorkerPoolAlwaysCompletesJobs(t *testing.T) {
	fp := &fakeProvider{failN: 99} // never succeeds
	wp := NewWorkerPool(fp, 1, 10, 50*time.Millisecond, false, zerolog.Nop())
	wp.Start()
	defer wp.Stop()

	done := make(chan string, 1)
	wp.Enqueue(Job{
		CallID: 3,
		Ref:    AudioRef{Bytes: []byte("plenty of bytes to pass the size floor")},
		Complete: func(ctx context.Context, callID int64, text string) {
			done <- text
		},
	})

	select {
	case text := <-done:
		if text != "" {
			t.Errorf("text = %q, want empty transcription after exhausted retries", text)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("job never completed: a permanently failing provider must not stall the pipeline")
	}
}
