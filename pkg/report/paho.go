// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package report

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// PahoPublisher publishes to a real broker.
type PahoPublisher struct {
	client paho.Client
}

// NewPahoPublisher connects to broker. willTopic and willPayload, when set, are
// published by the broker if the connection drops.
func NewPahoPublisher(broker, clientID, willTopic string, willPayload []byte) (*PahoPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if willTopic != "" {
		opts.SetBinaryWill(willTopic, willPayload, 1, true)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &PahoPublisher{client: client}, nil
}

func (p *PahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *PahoPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
