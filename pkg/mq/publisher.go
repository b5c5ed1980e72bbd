package mq

import (
	"context"
	"encoding/json"
	"time"

	"fuzzforge/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// CampaignEventsQueue receives one message per finished campaign and
// one per discovered crash.
const CampaignEventsQueue = "campaign_events"

const (
	EventCampaignFinished = "campaign_finished"
	EventCrashFound       = "crash_found"
)

type CampaignEvent struct {
	Kind         string    `json:"kind"`
	CampaignID   string    `json:"campaign_id"`
	Workspace    string    `json:"workspace,omitempty"`
	Fuzzer       string    `json:"fuzzer,omitempty"`
	CrashPath    string    `json:"crash_path,omitempty"`
	CrashCount   int       `json:"crash_count,omitempty"`
	TraceCarrier string    `json:"trace_carrier,omitempty"`
	EmittedAt    time.Time `json:"emitted_at"`
}

// EventPublisher pushes campaign events onto the broker. Publishing is
// best effort; a campaign never fails because the broker is away.
type EventPublisher struct {
	rabbitMQ RabbitMQ
	logger   *zap.Logger
}

func NewEventPublisher(rabbitMQ RabbitMQ, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		rabbitMQ: rabbitMQ,
		logger:   logger.Named("events"),
	}
}

// PublishCampaignReport emits the finished-campaign event. The trace
// carrier lets a consumer continue the campaign's trace.
func (p *EventPublisher) PublishCampaignReport(ctx context.Context, report *types.CampaignReport, traceCarrier string) error {
	return p.publish(ctx, CampaignEvent{
		Kind:         EventCampaignFinished,
		CampaignID:   report.ID,
		Workspace:    report.Workspace,
		CrashCount:   len(report.Crashes),
		TraceCarrier: traceCarrier,
		EmittedAt:    time.Now(),
	})
}

// PublishCrashFound emits one event per crash artifact.
func (p *EventPublisher) PublishCrashFound(ctx context.Context, campaignID string, crash types.CrashRecord) error {
	return p.publish(ctx, CampaignEvent{
		Kind:       EventCrashFound,
		CampaignID: campaignID,
		Fuzzer:     crash.Fuzzer,
		CrashPath:  crash.Path,
		EmittedAt:  time.Now(),
	})
}

func (p *EventPublisher) publish(ctx context.Context, event CampaignEvent) error {
	channel := p.rabbitMQ.GetChannel()
	if channel == nil {
		p.logger.Debug("event publishing disabled, dropping event", zap.String("kind", event.Kind))
		return nil
	}
	defer channel.Close()

	q, err := channel.QueueDeclare(
		CampaignEventsQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(ctx,
		"",     // exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return err
	}

	p.logger.Debug("published campaign event",
		zap.String("kind", event.Kind),
		zap.String("campaign_id", event.CampaignID))
	return nil
}
