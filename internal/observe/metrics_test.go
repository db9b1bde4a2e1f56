package observe

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teslashibe/go-presence/pkg/command"
	"github.com/teslashibe/go-presence/pkg/driver"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns counter totals keyed by the value of attribute key.
func sumByAttr(t *testing.T, m *metricdata.Metrics, key string) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestObserver_PipelineCounters(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.FrameProcessed(40 * time.Millisecond)
	m.FrameProcessed(60 * time.Millisecond)
	m.PresencePushed(driver.TriggerFirst)
	m.PresencePushed(driver.TriggerHeartbeat)
	m.PresencePushed(driver.TriggerHeartbeat)
	m.LastSeenUpdated()
	m.DetectorError("zone")

	rm := collect(t, reader)

	frames := findMetric(rm, "presence.frames")
	if frames == nil {
		t.Fatal("presence.frames not found")
	}
	if got := sumByAttr(t, frames, AttrStage)[""]; got != 2 {
		t.Errorf("frames: got %d, want 2", got)
	}

	dur := findMetric(rm, "presence.frame.duration")
	if dur == nil {
		t.Fatal("presence.frame.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("frame duration: got %+v", dur.Data)
	}

	pushes := sumByAttr(t, findMetric(rm, "presence.pushes"), AttrTrigger)
	if pushes["first"] != 1 || pushes["heartbeat"] != 2 {
		t.Errorf("pushes: got %v", pushes)
	}

	if got := sumByAttr(t, findMetric(rm, "presence.last_seen.updates"), AttrStage)[""]; got != 1 {
		t.Errorf("last seen updates: got %d, want 1", got)
	}
	if got := sumByAttr(t, findMetric(rm, "presence.detector.errors"), AttrStage)["zone"]; got != 1 {
		t.Errorf("detector errors: got %d, want 1", got)
	}
}

func TestObserver_VoiceCounters(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.CommandHandled(command.Intent{Kind: command.QueryLocation}, command.Effect{})
	m.CommandHandled(command.Intent{Kind: command.QueryLocation}, command.Effect{})
	m.CommandHandled(command.Intent{Kind: command.Unrecognized}, command.Effect{})
	m.Woke()
	m.Spoken("hello", nil)
	m.Spoken("hello", errors.New("boom"))

	rm := collect(t, reader)

	cmds := sumByAttr(t, findMetric(rm, "presence.commands"), AttrIntent)
	if cmds[command.QueryLocation.String()] != 2 || cmds[command.Unrecognized.String()] != 1 {
		t.Errorf("commands: got %v", cmds)
	}
	if got := sumByAttr(t, findMetric(rm, "presence.wake.events"), AttrIntent)[""]; got != 1 {
		t.Errorf("wake events: got %d, want 1", got)
	}
	spoken := sumByAttr(t, findMetric(rm, "presence.speech.utterances"), AttrResult)
	if spoken["ok"] != 1 || spoken["error"] != 1 {
		t.Errorf("utterances: got %v", spoken)
	}
}

func TestInitProvider_ServesPrometheus(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{ServiceName: "presenced-test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.FrameProcessed(10 * time.Millisecond)
	m.PresencePushed(driver.TriggerChange)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"presence_frames", "presence_pushes", `trigger="change"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}
