package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient is the subset of mqtt.Client used for publishing.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher pushes tracking updates to <prefix>/<aggregate>/<event_type>
// so patient-facing displays can subscribe per appointment.
type MQTTPublisher struct {
	client  MQTTClient
	prefix  string
	timeout time.Duration
}

// NewMQTTClient connects a paho client with auto reconnect.
func NewMQTTClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("events: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("events: mqtt connect: %w", err)
	}
	return client, nil
}

func NewMQTTPublisher(client MQTTClient, prefix string) *MQTTPublisher {
	if client == nil {
		panic("events: mqtt client required")
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		timeout: 5 * time.Second,
	}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic an envelope is published to.
func (p *MQTTPublisher) Topic(env Envelope) string {
	aggregate := strings.ReplaceAll(env.Aggregate, ":", "/")
	return p.prefix + "/" + aggregate + "/" + env.EventType
}

func (p *MQTTPublisher) Publish(ctx context.Context, env Envelope) error {
	token := p.client.Publish(p.Topic(env), 1, false, []byte(env.Payload))
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("events: mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("events: mqtt publish: %w", err)
	}
	return nil
}
