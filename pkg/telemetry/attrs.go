package telemetry

import (
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
)

type SpanAttributes struct {
	ActionCategory string

	workspace     optional[string] // fuzzforge.workspace
	containerRef  optional[string] // fuzzforge.container
	campaignID    optional[string] // fuzzforge.campaign.id
	targetHarness optional[string] // fuzzforge.target.harness
	targetCount   optional[int]    // fuzzforge.target.count
	crashCount    optional[int]    // fuzzforge.crash.count
	exitCode      optional[int]    // fuzzforge.process.exit_code
	attempt       optional[int]    // fuzzforge.campaign.attempt

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// EmptySpanAttributes returns an instance with no action category, to
// be populated later.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge updates the current SpanAttributes with values from another.
// Optional fields only transfer when unset here; the action category
// always follows the other side when it has one.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	mergeOptional(&o.workspace, &other.workspace)
	mergeOptional(&o.containerRef, &other.containerRef)
	mergeOptional(&o.campaignID, &other.campaignID)
	mergeOptional(&o.targetHarness, &other.targetHarness)
	mergeOptional(&o.targetCount, &other.targetCount)
	mergeOptional(&o.crashCount, &other.crashCount)
	mergeOptional(&o.exitCode, &other.exitCode)
	mergeOptional(&o.attempt, &other.attempt)

	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	for k, v := range other.extraAttributes {
		if _, exists := o.extraAttributes[k]; !exists {
			o.extraAttributes[k] = v
		}
	}
}

func (o *SpanAttributes) WithWorkspace(val string) *SpanAttributes {
	o.workspace.Set(val)
	return o
}

func (o *SpanAttributes) WithContainerRef(val string) *SpanAttributes {
	o.containerRef.Set(val)
	return o
}

func (o *SpanAttributes) WithCampaignID(val string) *SpanAttributes {
	o.campaignID.Set(val)
	return o
}

func (o *SpanAttributes) WithTargetHarness(val string) *SpanAttributes {
	o.targetHarness.Set(val)
	return o
}

func (o *SpanAttributes) WithTargetCount(val int) *SpanAttributes {
	o.targetCount.Set(val)
	return o
}

func (o *SpanAttributes) WithCrashCount(val int) *SpanAttributes {
	o.crashCount.Set(val)
	return o
}

func (o *SpanAttributes) WithExitCode(val int) *SpanAttributes {
	o.exitCode.Set(val)
	return o
}

func (o *SpanAttributes) WithAttempt(val int) *SpanAttributes {
	o.attempt.Set(val)
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o *SpanAttributes) WithExtraAttributes(attrs map[string]any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, attrs)
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("fuzzforge.action.category", o.ActionCategory))
	if o.workspace.set {
		attrs = append(attrs, attribute.String("fuzzforge.workspace", o.workspace.val))
	}
	if o.containerRef.set {
		attrs = append(attrs, attribute.String("fuzzforge.container", o.containerRef.val))
	}
	if o.campaignID.set {
		attrs = append(attrs, attribute.String("fuzzforge.campaign.id", o.campaignID.val))
	}
	if o.targetHarness.set {
		attrs = append(attrs, attribute.String("fuzzforge.target.harness", o.targetHarness.val))
	}
	if o.targetCount.set {
		attrs = append(attrs, attribute.Int("fuzzforge.target.count", o.targetCount.val))
	}
	if o.crashCount.set {
		attrs = append(attrs, attribute.Int("fuzzforge.crash.count", o.crashCount.val))
	}
	if o.exitCode.set {
		attrs = append(attrs, attribute.Int("fuzzforge.process.exit_code", o.exitCode.val))
	}
	if o.attempt.set {
		attrs = append(attrs, attribute.Int("fuzzforge.campaign.attempt", o.attempt.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}
