package events

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/pkg/natsutil"
)

// NATSSink republishes events on {prefix}.{kind}.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

// NewNATSSink creates a sink publishing under prefix.
func NewNATSSink(nc *nats.Conn, prefix string, log *zap.Logger) *NATSSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSSink{nc: nc, prefix: prefix, log: log.Named("events.nats")}
}

// Subject returns the subject an event of kind k is published on.
func (s *NATSSink) Subject(k Kind) string {
	return natsutil.Subject(s.prefix, string(k))
}

// Forward publishes every event from ch until ch is closed, then flushes.
// Publish failures are logged and skipped.
func (s *NATSSink) Forward(ctx context.Context, ch <-chan Event) {
	for ev := range ch {
		if err := natsutil.Publish(ctx, s.nc, s.Subject(ev.Kind), ev); err != nil {
			s.log.Warn("publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
	if err := s.nc.Flush(); err != nil {
		s.log.Warn("flush events", zap.Error(err))
	}
}

// Watch subscribes to every event kind under prefix.
func Watch(nc *nats.Conn, prefix string, handler func(context.Context, Event)) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, natsutil.Subject(prefix, ">"), handler)
}
