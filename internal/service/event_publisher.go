package service

import (
	"strings"

	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/pkg/messaging"

	"github.com/sirupsen/logrus"
)

// EventPublisher forwards bus events to a message exchange, routed as "proxy.<event>".
// Credentials are stripped from proxy snapshots before they leave the process.
type EventPublisher struct {
	publisher messaging.Publisher
	exchange  string
	logger    *logrus.Logger
	skip      map[models.EventType]struct{}
}

func NewEventPublisher(publisher messaging.Publisher, exchange string, logger *logrus.Logger) *EventPublisher {
	return &EventPublisher{
		publisher: publisher,
		exchange:  exchange,
		logger:    logger,
		// selections are high volume and already covered by metrics
		skip: map[models.EventType]struct{}{
			models.EventProxySelected: {},
		},
	}
}

// Attach subscribes the publisher to bus and returns the unsubscribe func.
func (p *EventPublisher) Attach(bus *EventBus) func() {
	return bus.Subscribe(p.Handle)
}

func (p *EventPublisher) Handle(event models.Event) {
	if _, ok := p.skip[event.Type]; ok {
		return
	}

	if event.Proxy != nil {
		redacted := event.Proxy.Clone()
		redacted.Password = ""
		event.Proxy = redacted
	}

	msg := messaging.NewMessage(string(event.Type), event)
	if event.ProxyID != "" {
		msg.Metadata["proxy_id"] = event.ProxyID
	}

	if err := p.publisher.Publish(p.exchange, RoutingKey(event.Type), msg); err != nil {
		p.logger.WithError(err).WithField("event", event.Type).Error("Failed to publish proxy event")
	}
}

func RoutingKey(t models.EventType) string {
	return "proxy." + strings.ReplaceAll(string(t), "-", ".")
}
