package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
)

func TestSpanAttributesMerge(t *testing.T) {
	base := NewSpanAttributes(Fuzzing).WithWorkspace("/ws").WithCrashCount(2)
	other := NewSpanAttributes(Building).WithWorkspace("/other").WithTargetCount(5)

	base.Merge(other)

	if base.ActionCategory != "building" {
		t.Errorf("action category should follow the merged side, got %q", base.ActionCategory)
	}
	if !base.targetCount.set || base.targetCount.val != 5 {
		t.Error("unset field should transfer on merge")
	}
	if base.workspace.val != "/ws" {
		t.Errorf("set field must not be overwritten, got %q", base.workspace.val)
	}
	if base.crashCount.val != 2 {
		t.Error("existing field lost in merge")
	}
}

func TestSpanAttributesMergeNil(t *testing.T) {
	attrs := NewSpanAttributes(Reporting)
	attrs.Merge(nil) // must not panic
	if attrs.ActionCategory != "reporting" {
		t.Errorf("unexpected category: %q", attrs.ActionCategory)
	}
}

func TestSpanAttributesRendering(t *testing.T) {
	attrs := NewSpanAttributes(Discovering).
		WithCampaignID("abc").
		WithExitCode(0).
		WithExtraAttribute("custom", 7)

	rendered := attrs.Attributes()
	keys := make(map[string]bool)
	for _, kv := range rendered {
		keys[string(kv.Key)] = true
	}
	for _, want := range []string{
		"fuzzforge.action.category",
		"fuzzforge.campaign.id",
		"fuzzforge.process.exit_code",
		"custom",
	} {
		if !keys[want] {
			t.Errorf("missing attribute %q in %v", want, keys)
		}
	}
}

func TestActionCategoryStrings(t *testing.T) {
	cases := map[ActionCategory]string{
		Discovering:         "discovering",
		Building:            "building",
		Fuzzing:             "fuzzing",
		Correlating:         "correlating",
		Reporting:           "reporting",
		Backtrace:           "backtrace",
		ActionCategory(999): "unknown",
	}
	for cat, want := range cases {
		if got := cat.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", cat, got, want)
		}
	}
}

func TestFactoryWithoutTelemetryIsSafe(t *testing.T) {
	factory := NewTracerFactory(TracerFactoryParams{})
	tracer := factory.NewTracer(context.Background(), "campaign")
	if _, ok := tracer.(*DummyTracer); !ok {
		t.Fatalf("expected DummyTracer, got %T", tracer)
	}

	// every operation must be callable without a backing span
	tracer.Start()
	tracer.WithAttributes(NewSpanAttributes(Fuzzing))
	tracer.AddEvent("noop", NewEventAttributes(map[string]string{"k": "v"}))
	tracer.SetStatus(codes.Ok, "fine")
	child := tracer.Spawn("stage")
	child.End()
	if tracer.Export() != "" {
		t.Error("dummy export should be empty")
	}
	tracer.End()
}
