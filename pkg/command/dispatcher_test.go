package command

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-presence/pkg/speech"
	"github.com/teslashibe/go-presence/pkg/state"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) Say(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

type fakeScheduler struct {
	delays []time.Duration
	fns    []func()
}

func (f *fakeScheduler) Schedule(d time.Duration, fn func()) string {
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	return "r-1"
}

type fakeAgent struct {
	replies []string
	err     error
	got     []string
}

func (a *fakeAgent) Interact(ctx context.Context, text string) ([]string, error) {
	a.got = append(a.got, text)
	return a.replies, a.err
}

type fakeTranslator struct {
	calls int
	out   string
	err   error
}

func (f *fakeTranslator) Translate(ctx context.Context, text string) (string, error) {
	f.calls++
	return f.out, f.err
}

var _ speech.Speaker = (*recorder)(nil)

func newTestDispatcher(opts ...Option) (*Dispatcher, *recorder, *state.Store) {
	store := state.New()
	rec := &recorder{}
	return New(store, rec, opts...), rec, store
}

func TestHandle_Reminder(t *testing.T) {
	sched := &fakeScheduler{}
	d, rec, _ := newTestDispatcher(WithScheduler(sched))

	eff := d.Handle(context.Background(), "remind me in 5 minutes")

	if eff.Kind != EffectSchedule || eff.Delay != 300*time.Second || eff.ReminderID != "r-1" {
		t.Fatalf("effect: %+v", eff)
	}
	if rec.last() != PhraseReminderSet {
		t.Errorf("spoken: %v", rec.all())
	}
	if len(sched.fns) != 1 {
		t.Fatalf("scheduled %d reminders", len(sched.fns))
	}

	sched.fns[0]()
	if rec.last() != "300 seconds reached!" {
		t.Errorf("reminder text: %q", rec.last())
	}
}

func TestHandle_UnparsableReminderSchedulesNothing(t *testing.T) {
	sched := &fakeScheduler{}
	d, _, _ := newTestDispatcher(WithScheduler(sched))

	eff := d.Handle(context.Background(), "remind me later")
	if eff.Kind != EffectNone || len(sched.delays) != 0 {
		t.Errorf("effect %+v, scheduled %v", eff, sched.delays)
	}
}

func TestHandle_QueryLocation(t *testing.T) {
	d, rec, store := newTestDispatcher()

	eff := d.Handle(context.Background(), "where am I")
	if eff.Text != PhraseNoPresence {
		t.Errorf("no presence: got %q", eff.Text)
	}

	store.WritePresence(state.Presence{Location: "Kitchen", InTargetZone: true, Time: time.Now()})
	eff = d.Handle(context.Background(), "what is my location")
	if eff.Kind != EffectSpeak || eff.Text != "You are at Kitchen." {
		t.Errorf("effect: %+v", eff)
	}
	if rec.last() != "You are at Kitchen." {
		t.Errorf("spoken: %v", rec.all())
	}
}

func TestHandle_LocateItemSetsAnnounceRequest(t *testing.T) {
	d, rec, store := newTestDispatcher()

	eff := d.Handle(context.Background(), "where are my glasses")

	if eff.Text != PhraseTurnAround || rec.last() != PhraseTurnAround {
		t.Errorf("effect %+v spoken %v", eff, rec.all())
	}
	req, ok := store.TakeAnnounce()
	if !ok {
		t.Fatal("expected announce request")
	}
	if req.Item != "spectacles" || req.ID == "" {
		t.Errorf("request: %+v", req)
	}
	if _, ok := store.TakeAnnounce(); ok {
		t.Error("request must be consumed once")
	}
}

func TestHandle_DuplicateSuppression(t *testing.T) {
	sched := &fakeScheduler{}
	d, _, _ := newTestDispatcher(WithScheduler(sched))
	ctx := context.Background()

	first := d.Handle(ctx, "Remind me in 10 seconds")
	second := d.Handle(ctx, "remind me in 10 SECONDS")

	if first.Kind != EffectSchedule {
		t.Fatalf("first: %+v", first)
	}
	if second.Kind != EffectNone {
		t.Errorf("second: %+v", second)
	}
	if len(sched.delays) != 1 {
		t.Errorf("expected exactly one reminder, got %d", len(sched.delays))
	}

	// A different transcript in between re-arms the same phrase.
	d.Handle(ctx, "hello")
	d.Handle(ctx, "remind me in 10 seconds")
	if len(sched.delays) != 2 {
		t.Errorf("expected second reminder after interleaving, got %d", len(sched.delays))
	}
}

func TestHandle_EmptyIgnored(t *testing.T) {
	var handled int
	d, rec, _ := newTestDispatcher(WithObserver(func(Intent, Effect) { handled++ }))

	for _, s := range []string{"", "   ", "\n\t"} {
		if eff := d.Handle(context.Background(), s); eff.Kind != EffectNone {
			t.Errorf("%q: effect %+v", s, eff)
		}
	}
	if handled != 0 || len(rec.all()) != 0 {
		t.Errorf("empty transcripts had effects: handled=%d spoken=%v", handled, rec.all())
	}
}

func TestHandle_SubMode(t *testing.T) {
	agent := &fakeAgent{replies: []string{"Hello there.", " ", "How can I help?"}}
	sched := &fakeScheduler{}
	d, rec, _ := newTestDispatcher(WithAgent(agent), WithScheduler(sched))
	ctx := context.Background()

	eff := d.Handle(ctx, "start")
	if eff.Kind != EffectSetMode || !eff.Active || eff.Text != "Voiceflow activated." {
		t.Fatalf("enter: %+v", eff)
	}
	if d.Mode() != SubModeActive {
		t.Fatalf("mode: %v", d.Mode())
	}

	eff = d.Handle(ctx, "remind me in 5 seconds")
	if eff.Intent != PassthroughSubModeQuery || eff.Text != "Hello there. How can I help?" {
		t.Errorf("passthrough: %+v", eff)
	}
	if len(sched.delays) != 0 {
		t.Error("reminders must not fire in sub-mode")
	}
	if len(agent.got) != 1 || agent.got[0] != "remind me in 5 seconds" {
		t.Errorf("agent got %v", agent.got)
	}

	eff = d.Handle(ctx, "exit voiceflow")
	if eff.Kind != EffectSetMode || eff.Active || rec.last() != "Voiceflow deactivated." {
		t.Errorf("exit: %+v spoken %v", eff, rec.all())
	}
	if d.Mode() != Idle {
		t.Errorf("mode: %v", d.Mode())
	}
}

func TestHandle_AgentFailure(t *testing.T) {
	agent := &fakeAgent{err: errors.New("503")}
	d, rec, _ := newTestDispatcher(WithAgent(agent))

	d.Handle(context.Background(), "start")
	eff := d.Handle(context.Background(), "tell me a joke")

	if eff.Text != PhraseAgentFailed || rec.last() != PhraseAgentFailed {
		t.Errorf("effect %+v spoken %v", eff, rec.all())
	}
}

func TestHandle_FallbackTranslatorErrorsSwallowed(t *testing.T) {
	tr := &fakeTranslator{err: errors.New("offline")}
	d, rec, _ := newTestDispatcher(WithTranslator(tr))

	eff := d.Handle(context.Background(), "bonjour tout le monde")
	if eff.Kind != EffectNone || eff.Intent != Unrecognized {
		t.Errorf("effect: %+v", eff)
	}
	if tr.calls != 1 {
		t.Errorf("translator calls: %d", tr.calls)
	}
	if len(rec.all()) != 0 {
		t.Errorf("unexpected speech: %v", rec.all())
	}
}

func TestHandle_FallbackTranslationIsLoggedNotSpoken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tr := &fakeTranslator{out: "hello everyone"}
	d, rec, _ := newTestDispatcher(WithTranslator(tr), WithLogger(logger))

	eff := d.Handle(context.Background(), "bonjour tout le monde")
	if eff.Kind != EffectNone || eff.Text != "" {
		t.Errorf("effect: %+v", eff)
	}
	if len(rec.all()) != 0 {
		t.Errorf("translation was spoken: %v", rec.all())
	}
	if !strings.Contains(buf.String(), `translated="hello everyone"`) {
		t.Errorf("translation not logged: %s", buf.String())
	}
}

func TestHandle_OversizedReminderSchedulesNothing(t *testing.T) {
	sched := &fakeScheduler{}
	d, rec, _ := newTestDispatcher(WithScheduler(sched))

	eff := d.Handle(context.Background(), "remind me in 9999999999999 hours")
	if eff.Kind == EffectSchedule || len(sched.delays) != 0 {
		t.Errorf("effect %+v, scheduled %v", eff, sched.delays)
	}
	for _, text := range rec.all() {
		if text == PhraseReminderSet {
			t.Errorf("acknowledged an oversized reminder")
		}
	}
}

func TestSessionHooks(t *testing.T) {
	d, rec, _ := newTestDispatcher()
	ctx := context.Background()

	d.BeginSession()
	d.Handle(ctx, "where am i")
	d.EndSession()

	// The same question in a new session is not a duplicate.
	d.BeginSession()
	if eff := d.Handle(ctx, "where am i"); eff.Kind != EffectSpeak {
		t.Errorf("new session: %+v", eff)
	}

	want := []string{PhraseListening, PhraseNoPresence, PhraseSessionEnded, PhraseListening, PhraseNoPresence}
	got := rec.all()
	if len(got) != len(want) {
		t.Fatalf("spoken %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("utterance %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTimerScheduler(t *testing.T) {
	s := NewTimerScheduler()

	fired := make(chan string, 1)
	id := s.Schedule(5*time.Millisecond, func() { fired <- "a" })
	if id == "" {
		t.Fatal("expected reminder ID")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("reminder did not fire")
	}

	cancelled := s.Schedule(time.Hour, func() { t.Error("cancelled reminder fired") })
	if s.Pending() != 1 {
		t.Errorf("Pending: %d", s.Pending())
	}
	if !s.Cancel(cancelled) {
		t.Error("Cancel: expected true")
	}

	s.Schedule(time.Hour, func() { t.Error("reminder fired after Stop") })
	s.Stop()
	if s.Pending() != 0 {
		t.Errorf("Pending after Stop: %d", s.Pending())
	}
	if id := s.Schedule(time.Millisecond, func() {}); id != "" {
		t.Errorf("Schedule after Stop returned %q", id)
	}
}
