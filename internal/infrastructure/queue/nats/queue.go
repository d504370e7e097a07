package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
)

// Queue carries draft lifecycle events. Each event type has its own subject under the
// configured prefix, e.g. "drafts.approved".
type Queue struct {
	conn          *nats.Conn
	subjectPrefix string
	queueGroup    string
	executor      *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func New(url, subjectPrefix string) (*Queue, error) {
	return NewWithOptions(url, subjectPrefix, Options{})
}

func NewWithOptions(url, subjectPrefix string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "converters"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("action-orchestrator"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		subjectPrefix: strings.TrimSuffix(subjectPrefix, "."),
		queueGroup:    queueGroup,
		executor:      options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDraftEvent(ctx context.Context, event domain.DraftEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal draft event: %w", err)
	}
	subject := subjectFor(q.subjectPrefix, event.Type)

	call := func(_ context.Context) error {
		msg := nats.NewMsg(subject)
		msg.Data = data
		msg.Header.Set("Draft-Id", event.DraftID)
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		op := resilience.Operation{Collaborator: resilience.CollaboratorEvents, Name: "publish." + eventSuffix(event.Type)}
		err = q.executor.Execute(ctx, op, call, classifyPublish)
	} else {
		err = call(ctx)
	}
	return publishError(event.Type, err)
}

// Connection-level failures; the client buffers or reconnects, so a later attempt can land.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

func isTransientPublishError(err error) bool {
	for _, target := range transientPublishErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyPublish(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isTransientPublishError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// publishError maps a publish failure to ErrTemporary when the broker may accept the
// event later and to ErrUpstream otherwise.
func publishError(eventType domain.DraftEventType, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	op := "publish " + string(eventType)
	if classifyPublish(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return domain.WrapError(domain.ErrUpstream, op, err)
}

// SubscribeDraftEvents consumes approved-draft events in the queue group until ctx ends,
// then drains the subscription.
func (q *Queue) SubscribeDraftEvents(ctx context.Context, handler func(context.Context, domain.DraftEvent) error) error {
	subject := subjectFor(q.subjectPrefix, domain.DraftEventApproved)
	sub, err := q.conn.QueueSubscribe(subject, q.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.DraftEvent) error) {
	var event domain.DraftEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("draft_event_decode_failed", "error", err, "bytes", len(data))
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		slog.Error("draft_event_handler_failed",
			"draft_id", event.DraftID,
			"event_type", string(event.Type),
			"error", err,
		)
	}
}

func eventSuffix(eventType domain.DraftEventType) string {
	return strings.TrimPrefix(string(eventType), "draft.")
}

func subjectFor(prefix string, eventType domain.DraftEventType) string {
	suffix := eventSuffix(eventType)
	if prefix == "" {
		return "drafts." + suffix
	}
	return prefix + "." + suffix
}
