package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type recordingSink struct {
	mu     sync.Mutex
	events []VideoUploaded
	block  chan struct{}
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event VideoUploaded) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherAcceptsEventsFromCancelledCallers(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 4, Workers: 1}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Enqueue(ctx, VideoUploaded{VideoID: "v1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := sink.count(); got != 1 {
		t.Fatalf("expected the event to be published, got %d", got)
	}
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 16, Workers: 2}, quietLogger())

	for i := 0; i < 10; i++ {
		if err := d.Enqueue(context.Background(), VideoUploaded{VideoID: "v"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := sink.count(); got != 10 {
		t.Fatalf("expected all queued events published, got %d", got)
	}

	if err := d.Enqueue(context.Background(), VideoUploaded{}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed got %v", err)
	}
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 1, Workers: 1}, quietLogger())

	var full bool
	for i := 0; i < 5; i++ {
		if err := d.Enqueue(context.Background(), VideoUploaded{}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("expected the queue to report saturation")
	}

	close(sink.block)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDispatcherShutdownDeadline(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	defer close(sink.block)
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 1, Workers: 1}, quietLogger())

	if err := d.Enqueue(context.Background(), VideoUploaded{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded got %v", err)
	}
}

func TestDispatcherLogsSinkErrors(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	d := NewDispatcher(&recordingSink{err: errors.New("queue unavailable")}, DispatcherConfig{}, logger)
	if err := d.Enqueue(context.Background(), VideoUploaded{VideoID: "v1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "queue unavailable") || !strings.Contains(buf.String(), "video_id=v1") {
		t.Fatalf("expected sink failure to be logged, got %q", buf.String())
	}
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type stubSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (s *stubSQS) SendMessage(_ context.Context, input *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSSinkPublish(t *testing.T) {
	client := &stubSQS{}
	sink := &SQSSink{client: client, queueURL: "https://sqs.example.com/123/uploads"}

	event := VideoUploaded{VideoID: "v1", Key: "k.mp4", OwnerID: "u1", SizeBytes: 42}
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if aws.ToString(client.input.QueueUrl) != "https://sqs.example.com/123/uploads" {
		t.Fatalf("unexpected queue url %q", aws.ToString(client.input.QueueUrl))
	}
	if attr := client.input.MessageAttributes["event_type"]; aws.ToString(attr.StringValue) != eventTypeVideoUploaded {
		t.Fatalf("unexpected event type attribute %+v", attr)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["video_id"] != "v1" || decoded["key"] != "k.mp4" || decoded["size_bytes"] != float64(42) {
		t.Fatalf("unexpected message body %v", decoded)
	}

	client.err = errors.New("throttled")
	if err := sink.Publish(context.Background(), event); err == nil {
		t.Fatal("expected send error")
	}
}
