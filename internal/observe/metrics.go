package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teslashibe/go-presence/pkg/command"
	"github.com/teslashibe/go-presence/pkg/driver"
)

const meterName = "github.com/teslashibe/go-presence"

// Attribute keys.
const (
	AttrTrigger = "trigger"
	AttrStage   = "stage"
	AttrIntent  = "intent"
	AttrResult  = "result"
)

// Metrics holds every instrument. It implements driver.Observer.
type Metrics struct {
	FramesProcessed metric.Int64Counter
	FrameDuration   metric.Float64Histogram
	PresencePushes  metric.Int64Counter
	LastSeenUpdates metric.Int64Counter
	DetectorErrors  metric.Int64Counter

	Commands         metric.Int64Counter
	WakeEvents       metric.Int64Counter
	SpeechUtterances metric.Int64Counter
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	// Pipeline.
	if met.FramesProcessed, err = m.Int64Counter("presence.frames",
		metric.WithDescription("Frames run through the detectors."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("presence.frame.duration",
		metric.WithDescription("Time to detect and evaluate one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	); err != nil {
		return nil, err
	}
	if met.PresencePushes, err = m.Int64Counter("presence.pushes",
		metric.WithDescription("Presence records published, by trigger."),
	); err != nil {
		return nil, err
	}
	if met.LastSeenUpdates, err = m.Int64Counter("presence.last_seen.updates",
		metric.WithDescription("Last-seen records published."),
	); err != nil {
		return nil, err
	}
	if met.DetectorErrors, err = m.Int64Counter("presence.detector.errors",
		metric.WithDescription("Detector failures by stage."),
	); err != nil {
		return nil, err
	}

	// Voice.
	if met.Commands, err = m.Int64Counter("presence.commands",
		metric.WithDescription("Transcripts handled, by intent."),
	); err != nil {
		return nil, err
	}
	if met.WakeEvents, err = m.Int64Counter("presence.wake.events",
		metric.WithDescription("Wake word detections."),
	); err != nil {
		return nil, err
	}
	if met.SpeechUtterances, err = m.Int64Counter("presence.speech.utterances",
		metric.WithDescription("Utterances spoken, by result."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// FrameProcessed implements driver.Observer.
func (m *Metrics) FrameProcessed(elapsed time.Duration) {
	ctx := context.Background()
	m.FramesProcessed.Add(ctx, 1)
	m.FrameDuration.Record(ctx, elapsed.Seconds())
}

// PresencePushed implements driver.Observer.
func (m *Metrics) PresencePushed(trigger driver.Trigger) {
	m.PresencePushes.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(AttrTrigger, string(trigger))))
}

// LastSeenUpdated implements driver.Observer.
func (m *Metrics) LastSeenUpdated() {
	m.LastSeenUpdates.Add(context.Background(), 1)
}

// DetectorError implements driver.Observer.
func (m *Metrics) DetectorError(stage string) {
	m.DetectorErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(AttrStage, stage)))
}

// CommandHandled matches command.WithObserver.
func (m *Metrics) CommandHandled(in command.Intent, _ command.Effect) {
	m.Commands.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(AttrIntent, in.Kind.String())))
}

// Woke counts one wake detection.
func (m *Metrics) Woke() {
	m.WakeEvents.Add(context.Background(), 1)
}

// Spoken matches speech.Pool.OnSpoken.
func (m *Metrics) Spoken(_ string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SpeechUtterances.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(AttrResult, result)))
}

var _ driver.Observer = (*Metrics)(nil)
