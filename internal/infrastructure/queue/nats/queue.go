package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/resilience"
)

// Queue carries answered-turn events from the API to the worker.

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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

	conn, err := nats.Connect(
		url,
		nats.Name("movie-search-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", errString(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishAnswered(ctx context.Context, event domain.AnswerEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return publishError(err)
}

// publishError tags failures a later publish may get past as ErrTemporary.
func publishError(err error) error {
	switch publishFailureOf(err) {
	case publishOK:
		return nil
	case publishTransient, publishShed:
		return domain.WrapError(domain.ErrTemporary, "publish answered event", err)
	default:
		return err
	}
}

type publishFailure int

const (
	publishOK publishFailure = iota
	publishCanceled
	// publishTransient is connection churn that a reconnect can fix.
	publishTransient
	// publishShed means the breaker is open and nothing was sent.
	publishShed
	// publishRejected means this event can never be accepted as sent.
	publishRejected
	publishUnknown
)

func publishFailureOf(err error) publishFailure {
	switch {
	case err == nil:
		return publishOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return publishCanceled
	case resilience.IsCircuitOpen(err):
		return publishShed
	case errors.Is(err, nats.ErrMaxPayload),
		errors.Is(err, nats.ErrBadSubject),
		errors.Is(err, nats.ErrInvalidMsg):
		return publishRejected
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return publishTransient
	default:
		return publishUnknown
	}
}

// classifyPublishError retries connection churn only. Oversized or malformed
// events say nothing about broker health, so they stay out of the breaker.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch publishFailureOf(err) {
	case publishTransient:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case publishUnknown:
		return resilience.ErrorClassification{RecordFailure: true}
	default:
		return resilience.ErrorClassification{}
	}
}

// SubscribeAnswered delivers events to handler until ctx is done, then drains
// the subscription. Workers share one queue group.
func (q *Queue) SubscribeAnswered(ctx context.Context, handler func(context.Context, domain.AnswerEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("answer_event_decode_failed", "error", err.Error(), "bytes", len(msg.Data))
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Error("answer_event_handler_failed", "session_id", event.SessionID, "error", err.Error())
		}
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

func encodeEvent(event domain.AnswerEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal answer event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.AnswerEvent, error) {
	var event domain.AnswerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.AnswerEvent{}, fmt.Errorf("unmarshal answer event: %w", err)
	}
	if event.Query == "" && event.SessionID == "" {
		return domain.AnswerEvent{}, fmt.Errorf("answer event is empty")
	}
	return event, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
