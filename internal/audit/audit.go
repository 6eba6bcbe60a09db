// Package audit records one event per request to the log and, optionally,
// to a Kafka topic.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event describes a finished request.
type Event struct {
	RequestID  string          `json:"request_id,omitempty"`
	ClientIP   string          `json:"client_ip"`
	Method     string          `json:"method,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Status     int             `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	Time       time.Time       `json:"time"`
}

// Sink receives audit events. Record must not block the request for long;
// failures are the sink's own business.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// LogSink writes events through slog.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Record logs the event.
func (s *LogSink) Record(ctx context.Context, ev Event) {
	attrs := []slog.Attr{
		slog.String("client_ip", ev.ClientIP),
		slog.Int("status", ev.Status),
		slog.Int64("duration_ms", ev.DurationMS),
	}
	if ev.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", ev.RequestID))
	}
	if ev.Method != "" {
		attrs = append(attrs, slog.String("method", ev.Method))
	}
	if ev.Tool != "" {
		attrs = append(attrs, slog.String("tool", ev.Tool))
	}
	if len(ev.Params) > 0 {
		attrs = append(attrs, slog.String("params", string(ev.Params)))
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "request audited", attrs...)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON, keyed by client IP.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
	log     *slog.Logger
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, log *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Warn("audit kafka writer", slog.String("msg", msg), slog.Any("args", args))
		}),
	}
	return newKafkaSink(w, log)
}

func newKafkaSink(w messageWriter, log *slog.Logger) *KafkaSink {
	return &KafkaSink{writer: w, timeout: 2 * time.Second, log: log}
}

// Record publishes the event. The request context is not used so that a
// cancelled request is still audited.
func (s *KafkaSink) Record(_ context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("marshal audit event", slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.ClientIP),
		Value: payload,
		Time:  ev.Time,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(strconv.Itoa(ev.Status))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Warn("publish audit event", slog.Any("err", err), slog.String("client_ip", ev.ClientIP))
	}
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Multi fans an event out to several sinks.
type Multi []Sink

// Record forwards the event to every sink.
func (m Multi) Record(ctx context.Context, ev Event) {
	for _, sink := range m {
		sink.Record(ctx, ev)
	}
}

// Close closes every sink that can be closed.
func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if c, ok := sink.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
