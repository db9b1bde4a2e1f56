package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/teslashibe/go-presence/pkg/speech"
	"github.com/teslashibe/go-presence/pkg/state"
)

// Spoken phrases.
const (
	PhraseListening     = "I'm listening."
	PhraseSessionEnded  = "Session ended."
	PhraseReminderSet   = "Reminder set."
	PhraseNoPresence    = "I cannot read presence right now."
	PhraseTurnAround    = "Turn around to check."
	PhraseAgentFailed   = "Sorry, I could not reach the assistant."
	reminderReachedForm = "%d seconds reached!"
	locationForm        = "You are at %s."
)

// Mode is the dispatcher state.
type Mode int

const (
	Idle Mode = iota
	SubModeActive
)

func (m Mode) String() string {
	if m == SubModeActive {
		return "sub_mode"
	}
	return "idle"
}

// EffectKind says what a handled transcript caused.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectSpeak
	EffectSchedule
	EffectSetMode
)

// Effect is the outcome of Handle. The dispatcher has already carried it
// out when Handle returns; the value is for callers that log or count.
type Effect struct {
	Kind   EffectKind
	Intent Kind

	// Text is what was spoken, if anything.
	Text string

	// Delay and ReminderID describe a scheduled reminder.
	Delay      time.Duration
	ReminderID string

	// Active is the sub-mode state after an EffectSetMode.
	Active bool
}

// Agent answers transcripts while the sub-mode is active.
type Agent interface {
	Interact(ctx context.Context, text string) ([]string, error)
}

// Translator is the best-effort fallback for unrecognized transcripts.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Dispatcher applies intents. Transcripts are expected one at a time but
// Handle is also safe for concurrent use.
type Dispatcher struct {
	parser     Parser
	store      *state.Store
	speaker    speech.Speaker
	scheduler  Scheduler
	agent      Agent
	translator Translator
	item       string
	clock      func() time.Time
	logger     *slog.Logger
	onHandled  func(Intent, Effect)

	mu   sync.Mutex
	mode Mode
	last string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithParser replaces the default vocabulary.
func WithParser(p Parser) Option {
	return func(d *Dispatcher) { d.parser = p }
}

// WithScheduler sets the reminder scheduler.
func WithScheduler(s Scheduler) Option {
	return func(d *Dispatcher) { d.scheduler = s }
}

// WithAgent sets the sub-mode agent.
func WithAgent(a Agent) Option {
	return func(d *Dispatcher) { d.agent = a }
}

// WithTranslator sets the fallback translator.
func WithTranslator(t Translator) Option {
	return func(d *Dispatcher) { d.translator = t }
}

// WithItem names the tracked item in announce requests.
func WithItem(item string) Option {
	return func(d *Dispatcher) { d.item = item }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver is called after every non-suppressed transcript.
func WithObserver(fn func(Intent, Effect)) Option {
	return func(d *Dispatcher) { d.onHandled = fn }
}

// New creates a dispatcher in the Idle mode.
func New(store *state.Store, speaker speech.Speaker, opts ...Option) *Dispatcher {
	if speaker == nil {
		speaker = speech.Discard
	}
	d := &Dispatcher{
		parser:  DefaultParser(),
		store:   store,
		speaker: speaker,
		item:    "spectacles",
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.scheduler == nil {
		d.scheduler = NewTimerScheduler()
	}
	d.logger = d.logger.With("component", "command")
	return d
}

// Mode returns the current state.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// BeginSession clears the duplicate memory and greets the user.
func (d *Dispatcher) BeginSession() {
	d.mu.Lock()
	d.last = ""
	d.mu.Unlock()
	d.say(PhraseListening)
}

// EndSession says goodbye. The mode is kept across sessions.
func (d *Dispatcher) EndSession() {
	d.say(PhraseSessionEnded)
}

// Handle processes one final transcript. Empty transcripts and exact
// case-insensitive repeats of the previous one return EffectNone and leave
// all state untouched.
func (d *Dispatcher) Handle(ctx context.Context, transcript string) Effect {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return Effect{}
	}

	d.mu.Lock()
	if strings.EqualFold(text, d.last) {
		d.mu.Unlock()
		d.logger.Debug("duplicate transcript ignored", "text", text)
		return Effect{}
	}
	d.last = text
	intent := d.parser.Parse(text, d.mode == SubModeActive)
	switch intent.Kind {
	case EnterSubMode:
		d.mode = SubModeActive
	case ExitSubMode:
		d.mode = Idle
	}
	d.mu.Unlock()

	d.logger.Info("transcript", "text", text, "intent", intent.Kind)

	eff := d.apply(ctx, intent)
	eff.Intent = intent.Kind
	if d.onHandled != nil {
		d.onHandled(intent, eff)
	}
	return eff
}

func (d *Dispatcher) apply(ctx context.Context, in Intent) Effect {
	switch in.Kind {
	case EnterSubMode:
		text := modeTitle(d.parser.SubMode) + " activated."
		d.say(text)
		return Effect{Kind: EffectSetMode, Active: true, Text: text}

	case ExitSubMode:
		text := modeTitle(d.parser.SubMode) + " deactivated."
		d.say(text)
		return Effect{Kind: EffectSetMode, Active: false, Text: text}

	case PassthroughSubModeQuery:
		return d.passthrough(ctx, in.Text)

	case SetReminder:
		secs := in.Seconds
		delay := time.Duration(secs) * time.Second
		id := d.scheduler.Schedule(delay, func() {
			d.say(fmt.Sprintf(reminderReachedForm, secs))
		})
		d.say(PhraseReminderSet)
		d.logger.Info("reminder scheduled", "id", id, "seconds", secs)
		return Effect{Kind: EffectSchedule, Delay: delay, ReminderID: id, Text: PhraseReminderSet}

	case QueryLocation:
		text := PhraseNoPresence
		if p, ok := d.store.ReadPresence(); ok && p.Location != "" {
			text = fmt.Sprintf(locationForm, p.Location)
		}
		d.say(text)
		return Effect{Kind: EffectSpeak, Text: text}

	case LocateItem:
		d.store.RequestAnnounce(state.AnnounceRequest{
			ID:          uuid.NewString(),
			Item:        d.item,
			RequestedAt: d.clock(),
		})
		d.say(PhraseTurnAround)
		return Effect{Kind: EffectSpeak, Text: PhraseTurnAround}
	}

	d.translate(ctx, in.Text)
	return Effect{}
}

func (d *Dispatcher) passthrough(ctx context.Context, text string) Effect {
	if d.agent == nil {
		d.logger.Warn("sub-mode active but no agent configured")
		return Effect{}
	}
	replies, err := d.agent.Interact(ctx, text)
	if err != nil {
		d.logger.Warn("agent failed", "error", err)
		d.say(PhraseAgentFailed)
		return Effect{Kind: EffectSpeak, Text: PhraseAgentFailed}
	}
	var spoken []string
	for _, r := range replies {
		if r = strings.TrimSpace(r); r != "" {
			d.say(r)
			spoken = append(spoken, r)
		}
	}
	if len(spoken) == 0 {
		return Effect{}
	}
	return Effect{Kind: EffectSpeak, Text: strings.Join(spoken, " ")}
}

func (d *Dispatcher) translate(ctx context.Context, text string) {
	if d.translator == nil {
		return
	}
	out, err := d.translator.Translate(ctx, text)
	if err != nil {
		d.logger.Debug("translation failed", "error", err)
		return
	}
	d.logger.Info("translation", "text", text, "translated", out)
}

func (d *Dispatcher) say(text string) {
	if err := d.speaker.Say(text); err != nil {
		d.logger.Warn("speak dropped", "text", text, "error", err)
	}
}

func modeTitle(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
