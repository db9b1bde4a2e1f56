package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-presence/pkg/tts"
)

type recordingPlayer struct {
	mu     sync.Mutex
	played []int
}

func (r *recordingPlayer) Play(ctx context.Context, res *tts.AudioResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, res.CharCount)
	return nil
}

func TestPool_SpeaksInOrder(t *testing.T) {
	provider := tts.NewMock()
	player := &recordingPlayer{}
	pool := NewPool(provider, player, Config{})

	for _, text := range []string{"I'm listening.", "Reminder set.", "Session ended."} {
		if err := pool.Say(text); err != nil {
			t.Fatalf("Say(%q): %v", text, err)
		}
	}
	if err := pool.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := provider.Texts()
	want := []string{"I'm listening.", "Reminder set.", "Session ended."}
	if len(got) != len(want) {
		t.Fatalf("spoken %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("utterance %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if len(player.played) != 3 {
		t.Errorf("played %d clips, want 3", len(player.played))
	}
}

func TestPool_SayAfterClose(t *testing.T) {
	pool := NewPool(tts.NewMock(), nil, Config{})
	pool.Close(context.Background())

	if err := pool.Say("hello"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := pool.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	provider := tts.NewMock()
	provider.Fn = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		<-release
		return &tts.AudioResult{}, nil
	}
	pool := NewPool(provider, nil, Config{QueueSize: 1})

	pool.Say("first")
	// Wait for the worker to pick up the first utterance.
	deadline := time.Now().Add(time.Second)
	for len(provider.Texts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := pool.Say("second"); err != nil {
		t.Fatalf("second Say: %v", err)
	}
	if err := pool.Say("third"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	pool.Close(context.Background())
}

func TestPool_CloseTimeoutCancelsWork(t *testing.T) {
	provider := tts.NewMock()
	provider.Fn = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var mu sync.Mutex
	var errs []error
	pool := NewPool(provider, nil, Config{})
	pool.OnSpoken = func(text string, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	pool.Say("blocked")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Errorf("expected cancelled utterance, got %v", errs)
	}
}

func TestSpeakerFunc(t *testing.T) {
	var got string
	var s Speaker = SpeakerFunc(func(text string) error { got = text; return nil })
	s.Say("hi")
	if got != "hi" {
		t.Errorf("got %q", got)
	}
	if err := Discard.Say("x"); err != nil {
		t.Errorf("Discard: %v", err)
	}
}
