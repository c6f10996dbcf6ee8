package rabbitmq

import (
	"context"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one delivery; a returned error is logged by the consumer.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches to a handler until ctx is done.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

var (
	_ IConsumer = (*Consumer)(nil)
	_ IConsumer = (*MultiConsumer)(nil)
)

// QoSFor is 1 for topics whose loss would leave a gap in the irrigation history.
func QoSFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "telemetry/") ||
		strings.HasPrefix(t, "pivot/sample") ||
		strings.HasPrefix(t, "event/irrigation") {
		return 1
	}
	return 0
}

// Consumer subscribes to a single topic filter.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
}

func NewConsumer(client mqtt.Client, topic string, handler Handler) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage blocks until the context is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	subscribe(c.client, c.topic, func() Handler { return c.handler })

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
}

// MultiConsumer subscribes to several topic filters with the same handler.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
}

func NewMultiConsumer(client mqtt.Client, topics []string, handler Handler) *MultiConsumer {
	return &MultiConsumer{
		client:  client,
		topics:  topics,
		handler: handler,
	}
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range m.topics {
		subscribe(m.client, topic, func() Handler { return m.handler })
	}

	<-ctx.Done()

	for _, topic := range m.topics {
		m.client.Unsubscribe(topic)
	}
}

func subscribe(client mqtt.Client, topic string, handler func() Handler) {
	token := client.Subscribe(topic, QoSFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
		h := handler()
		if h == nil {
			log.Printf("mqtt: no handler set for %s", topic)
			return
		}
		if err := h(msg.Topic(), msg); err != nil {
			log.Printf("mqtt: handling message on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("mqtt: subscribe %s: %v", topic, token.Error())
		return
	}
	log.Printf("mqtt: subscribed to %s (qos %d)", topic, QoSFor(topic))
}
