// Package app assembles presenced from its configuration and owns the
// lifecycle of every long-running component.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-presence/internal/config"
	"github.com/teslashibe/go-presence/internal/observe"
	"github.com/teslashibe/go-presence/pkg/agent"
	"github.com/teslashibe/go-presence/pkg/asr"
	"github.com/teslashibe/go-presence/pkg/audio"
	"github.com/teslashibe/go-presence/pkg/audioio"
	"github.com/teslashibe/go-presence/pkg/camera"
	"github.com/teslashibe/go-presence/pkg/command"
	"github.com/teslashibe/go-presence/pkg/detection"
	"github.com/teslashibe/go-presence/pkg/detection/yolo"
	"github.com/teslashibe/go-presence/pkg/driver"
	"github.com/teslashibe/go-presence/pkg/evidence"
	"github.com/teslashibe/go-presence/pkg/history"
	"github.com/teslashibe/go-presence/pkg/lastseen"
	"github.com/teslashibe/go-presence/pkg/persist"
	"github.com/teslashibe/go-presence/pkg/presence"
	"github.com/teslashibe/go-presence/pkg/speech"
	"github.com/teslashibe/go-presence/pkg/stability"
	"github.com/teslashibe/go-presence/pkg/state"
	"github.com/teslashibe/go-presence/pkg/tts"
	"github.com/teslashibe/go-presence/pkg/wakeword"
	"github.com/teslashibe/go-presence/pkg/web"
)

// App wires the detection loop, the voice listener and the status API
// around one state store.
type App struct {
	config *config.Config
	logger *slog.Logger

	store *state.Store

	// Vision
	anchor detection.Detector
	item   detection.Detector
	source driver.Source
	driver *driver.Driver

	// Voice
	ttsProvider tts.Provider
	player      speech.Player
	speaker     *speech.Pool
	scheduler   *command.TimerScheduler
	dispatcher  *command.Dispatcher
	trigger     *wakeword.Trigger
	listener    *wakeword.Listener

	// Status API, history and metrics
	history  *history.DB
	server   *web.Server
	provider *observe.Provider
	metrics  *observe.Metrics

	closers []func() error
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithDetectors replaces the ONNX detectors. item may be nil.
func WithDetectors(anchor, item detection.Detector) Option {
	return func(a *App) {
		a.anchor = anchor
		a.item = item
	}
}

// WithSource replaces the camera.
func WithSource(src driver.Source) Option {
	return func(a *App) { a.source = src }
}

// WithTTS replaces the synthesis chain.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.ttsProvider = p }
}

// WithPlayer replaces the external audio player.
func WithPlayer(p speech.Player) Option {
	return func(a *App) { a.player = p }
}

// New creates an App. Call Init before Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config: cfg,
		logger: slog.Default(),
		store:  state.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds every component. Model and camera failures are returned and
// are fatal to the caller.
func (a *App) Init(ctx context.Context) error {
	if err := a.initMetrics(ctx); err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}
	if err := a.initSpeech(); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}
	if err := a.initVoice(); err != nil {
		return fmt.Errorf("voice init: %w", err)
	}
	// Hydration writes the stored records into the store, so the history
	// log subscribes only after it.
	if err := a.initVision(); err != nil {
		return fmt.Errorf("vision init: %w", err)
	}
	if err := a.initHistory(); err != nil {
		return fmt.Errorf("history init: %w", err)
	}
	a.initWeb()
	return nil
}

func (a *App) initMetrics(ctx context.Context) error {
	if !a.config.Metrics {
		return nil
	}
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{GoCollectors: true})
	if err != nil {
		return err
	}
	m, err := observe.NewMetrics(p.MeterProvider)
	if err != nil {
		_ = p.Shutdown(ctx)
		return err
	}
	a.provider = p
	a.metrics = m
	return nil
}

func (a *App) initHistory() error {
	if a.config.HistoryDBPath == "" {
		return nil
	}
	db, err := history.Open(a.config.HistoryDBPath)
	if err != nil {
		return err
	}
	a.history = db
	a.closers = append(a.closers, db.Close)

	stop := db.Follow(a.store, a.logger)
	a.closers = append(a.closers, func() error {
		stop()
		return nil
	})
	return nil
}

func (a *App) initSpeech() error {
	logger := a.logger.With("component", "speech")

	if a.ttsProvider == nil {
		var providers []tts.Provider
		if a.config.OpenAIAPIKey != "" {
			p, err := tts.NewOpenAI(
				tts.WithAPIKey(a.config.OpenAIAPIKey),
				tts.WithVoice(a.config.TTSVoice),
				tts.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			providers = append(providers, p)
		}
		g, err := tts.NewGoogle(tts.WithLanguage("en"), tts.WithLogger(a.logger))
		if err != nil {
			return err
		}
		providers = append(providers, g)

		chain, err := tts.NewChain(a.logger, providers...)
		if err != nil {
			return err
		}
		logger.Info("voices", "fallback", chain.Name())
		a.ttsProvider = chain
		a.closers = append(a.closers, chain.Close)
	}
	if a.player == nil {
		a.player = audio.NewPlayer(nil, nil, a.logger)
	}

	cfg := speech.DefaultConfig()
	cfg.Logger = logger
	a.speaker = speech.NewPool(a.ttsProvider, a.player, cfg)
	if a.metrics != nil {
		a.speaker.OnSpoken = a.metrics.Spoken
	}
	return nil
}

func (a *App) initVoice() error {
	parser := command.DefaultParser()
	parser.SubMode = strings.ToLower(strings.TrimSpace(a.config.SubMode))

	opts := []command.Option{
		command.WithParser(parser),
		command.WithItem(a.config.TrackedItem),
		command.WithTranslator(agent.NewTranslator(agent.WithLanguages("auto", a.config.TranslateLanguage))),
		command.WithLogger(a.logger),
	}

	a.scheduler = command.NewTimerScheduler()
	opts = append(opts, command.WithScheduler(a.scheduler))

	if a.config.VoiceflowAPIKey != "" {
		vf, err := agent.NewVoiceflow(agent.VoiceflowConfig{
			APIKey:  a.config.VoiceflowAPIKey,
			BaseURL: a.config.VoiceflowURL,
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
		opts = append(opts, command.WithAgent(vf))
	}
	if a.metrics != nil {
		opts = append(opts, command.WithObserver(a.metrics.CommandHandled))
	}
	a.dispatcher = command.New(a.store, a.speaker, opts...)

	if !a.config.VoiceReady() {
		a.logger.Warn("voice disabled", "enabled", a.config.VoiceEnabled, "asr_key_set", a.config.AssemblyAIAPIKey != "")
		return nil
	}

	asrCfg := asr.DefaultConfig()
	asrCfg.APIKey = a.config.AssemblyAIAPIKey
	asrCfg.Logger = a.logger
	client, err := asr.NewClient(asrCfg)
	if err != nil {
		return err
	}

	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = audioio.Backend(a.config.AudioBackend)
	audioCfg.Device = a.config.AudioDevice
	audioCfg.SampleRate = asrCfg.SampleRate
	open, err := audioio.Opener(audioCfg, a.logger)
	if err != nil {
		return err
	}

	a.trigger = wakeword.NewTrigger()
	var det wakeword.Detector = a.trigger
	if a.config.WakeThreshold > 0 {
		det = wakeword.Any{a.trigger, wakeword.Energy{
			Threshold: a.config.WakeThreshold,
			Required:  a.config.WakeRequired,
		}}
	}

	lopts := []wakeword.Option{
		wakeword.WithLogger(a.logger),
		wakeword.WithFormattedTurns(asrCfg.FormatTurns),
	}
	if a.metrics != nil {
		lopts = append(lopts, wakeword.WithOnWake(a.metrics.Woke))
	}
	a.listener = wakeword.NewListener(det, client, open, a.dispatcher, lopts...)
	return nil
}

func (a *App) initVision() error {
	rules := evidence.DefaultKitchenRules()
	if path := a.config.RulesPath; path != "" {
		r, err := evidence.LoadRules(path)
		if err != nil {
			return err
		}
		rules = r
	}

	if a.anchor == nil {
		dc := detection.DefaultConfig()
		dc.ModelPath = a.config.ModelKitchen
		dc.Classes = a.config.KitchenClasses
		dc.ConfidenceThresh = a.config.DetectConf
		anchor, err := yolo.New(dc, a.logger)
		if err != nil {
			return fmt.Errorf("anchor model: %w", err)
		}
		a.anchor = anchor
		a.closers = append(a.closers, anchor.Close)

		dc.ModelPath = a.config.ModelSpec
		dc.Classes = a.config.SpecClasses
		item, err := yolo.New(dc, a.logger)
		if err != nil {
			return fmt.Errorf("item model: %w", err)
		}
		a.item = item
		a.closers = append(a.closers, item.Close)
	}

	if a.source == nil {
		cc := camera.DefaultConfig()
		cc.Width = a.config.CameraWidth
		cc.Height = a.config.CameraHeight
		if name := a.config.CameraPreset; name != "" {
			preset := camera.GetPreset(name)
			if preset == nil {
				return fmt.Errorf("unknown camera preset %q (have %v)", name, camera.PresetNames())
			}
			cc = *preset
		}
		if a.config.CameraIndex >= 0 {
			cc.Indices = []int{a.config.CameraIndex}
		}
		capture, err := camera.Open(cc, a.logger)
		if err != nil {
			return err
		}
		a.source = capture
		a.closers = append(a.closers, capture.Close)
	}

	pcfg := presence.DefaultConfig()
	pcfg.TargetZone = a.config.TargetZone
	pcfg.ElsewhereZone = a.config.ElsewhereZone
	pcfg.FixedZone = a.config.FixedPlace()
	pcfg.Announce = a.config.AnnouncePresence
	pt := presence.New(pcfg, a.store,
		persist.NewFileRecord[state.Presence](a.config.PresenceJSONPath),
		presence.WithSpeaker(a.speaker),
		presence.WithLogger(a.logger),
	)
	pt.Hydrate()

	var lt *lastseen.Tracker
	if a.item != nil {
		lt = lastseen.New(a.config.SpecThreshold, a.store,
			persist.NewFileRecord[state.LastSeen](a.config.LastSeenJSONPath),
			lastseen.WithLogger(a.logger),
		)
		lt.Hydrate()
	}

	dcfg := driver.DefaultConfig()
	dcfg.PushInterval = a.config.PushInterval()
	dcfg.ItemEveryN = a.config.SpecEveryN

	dopts := []driver.Option{driver.WithLogger(a.logger)}
	if a.metrics != nil {
		dopts = append(dopts, driver.WithObserver(a.metrics))
	}
	d, err := driver.New(dcfg, driver.Components{
		Anchor:    a.anchor,
		Item:      a.item,
		Evaluator: evidence.New(rules),
		Smoother:  stability.New(a.config.StableWindow, a.config.StableRequired),
		Presence:  pt,
		LastSeen:  lt,
		Store:     a.store,
		Speaker:   a.speaker,
	}, dopts...)
	if err != nil {
		return err
	}
	a.driver = d
	return nil
}

func (a *App) initWeb() {
	var opts []web.Option
	if a.trigger != nil {
		opts = append(opts, web.WithWaker(a.trigger))
	}
	if a.provider != nil {
		opts = append(opts, web.WithMetrics(a.provider.Handler()))
	}
	if a.history != nil {
		opts = append(opts, web.WithHistory(a.history))
	}
	a.server = web.NewServer(web.Config{
		Addr:         a.config.Addr(),
		PresenceFile: a.config.PresenceJSONPath,
		LastSeenFile: a.config.LastSeenJSONPath,
		AccessLog:    a.config.AccessLog,
		Logger:       a.logger,
	}, a.store, opts...)
}

// Store returns the shared state store.
func (a *App) Store() *state.Store {
	return a.store
}

// Run blocks until ctx is cancelled, a component fails, or the frame
// source is exhausted.
func (a *App) Run(ctx context.Context) error {
	if a.driver == nil {
		return errors.New("app: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.driver.Run(gctx, a.source)
	})
	if a.listener != nil {
		g.Go(func() error { return a.listener.Run(gctx) })
	}
	if a.server != nil {
		g.Go(func() error { return a.server.Run(gctx) })
	}

	a.logger.Info("presenced running",
		"addr", a.config.Addr(),
		"voice", a.listener != nil,
		"zone_mode", a.config.ZoneMode,
	)
	return g.Wait()
}

// Shutdown stops timers, drains pending speech and releases devices. It is
// safe after a failed Init and safe to call twice.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.speaker != nil {
		drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.speaker.Close(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("speech: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
		a.provider = nil
	}
	return errors.Join(errs...)
}
