package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockProcessor struct {
	suffix string
	failOn string
}

func (p *mockProcessor) Process(ctx context.Context, in string) (string, error) {
	if p.failOn != "" && in == p.failOn {
		return "", errors.New("boom")
	}
	return in + p.suffix, nil
}

type mockSink struct {
	received []string
	writeErr error
	mu       sync.Mutex
}

func (s *mockSink) Write(ctx context.Context, item string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, item)
	return nil
}

func (s *mockSink) Close() error { return nil }

func TestPipelineRunner_FanOut(t *testing.T) {
	src := &SliceSource[string]{Items: []string{"a", "b", "c", "d"}}
	sink := &mockSink{}
	runner := NewPipelineRunner[string, string](src, &mockProcessor{suffix: "-done"}, sink, PipelineConfig{
		Concurrency: 3,
		Name:        "test",
	})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.received) != 4 {
		t.Fatalf("expected 4 items at sink, got %d", len(sink.received))
	}
	sort.Strings(sink.received)
	if sink.received[0] != "a-done" {
		t.Errorf("unexpected first item: %s", sink.received[0])
	}
}

func TestPipelineRunner_ProcessorErrorSkipsItem(t *testing.T) {
	src := &SliceSource[string]{Items: []string{"a", "bad", "c"}}
	sink := &mockSink{}
	runner := NewPipelineRunner[string, string](src, &mockProcessor{failOn: "bad"}, sink, PipelineConfig{Concurrency: 1})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("processor errors must not abort the run: %v", err)
	}
	if len(sink.received) != 2 {
		t.Errorf("expected failing item to be dropped, got %d items", len(sink.received))
	}
}

func TestPipelineRunner_SinkErrorAborts(t *testing.T) {
	src := &SliceSource[string]{Items: []string{"a", "b"}}
	sink := &mockSink{writeErr: errors.New("disk full")}
	identity := &FunctionalProcessor[string, string]{
		Fn: func(_ context.Context, in string) (string, error) { return in, nil },
	}
	runner := NewPipelineRunner[string, string](src, identity, sink, PipelineConfig{Concurrency: 2})

	err := runner.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error to surface, got %v", err)
	}
}

type trackedSource struct {
	items      []string
	feederDone chan struct{}
}

func (s *trackedSource) Stream(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(s.feederDone)
		defer close(out)
		for _, item := range s.items {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func TestPipelineRunner_SinkErrorReleasesFeeder(t *testing.T) {
	items := make([]string, 100)
	for i := range items {
		items[i] = "x"
	}
	src := &trackedSource{items: items, feederDone: make(chan struct{})}
	sink := &mockSink{writeErr: errors.New("disk full")}
	runner := NewPipelineRunner[string, string](src, &mockProcessor{}, sink, PipelineConfig{Concurrency: 1})

	if err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected sink error")
	}

	// The feeder must not stay blocked on its send after the run aborts.
	select {
	case <-src.feederDone:
	case <-time.After(2 * time.Second):
		t.Fatal("source feeder goroutine still blocked after sink failure")
	}
}

func TestPipelineRunner_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := make([]string, 100)
	for i := range items {
		items[i] = "x"
	}
	src := &SliceSource[string]{Items: items}
	sink := &mockSink{}
	runner := NewPipelineRunner[string, string](src, &mockProcessor{}, sink, PipelineConfig{Concurrency: 2})

	if err := runner.Run(ctx); err != nil {
		t.Fatalf("cancelled run should not error: %v", err)
	}
	if len(sink.received) == 100 {
		t.Error("expected cancellation to stop the run early")
	}
}

func TestIsRetryable(t *testing.T) {
	plain := errors.New("plain")
	if ok, _ := IsRetryable(plain); ok {
		t.Error("plain error must not be retryable")
	}

	wrapped := &RetryableError{Err: ErrRateLimit, RetryAfter: 0}
	if ok, _ := IsRetryable(wrapped); !ok {
		t.Error("RetryableError must be retryable")
	}
	if !errors.Is(wrapped, ErrRateLimit) {
		t.Error("RetryableError must unwrap to its cause")
	}
}
