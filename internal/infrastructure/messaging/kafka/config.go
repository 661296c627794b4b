// Package kafka publishes inventory events to Kafka topics.
package kafka

import "time"

// Config holds producer configuration.
type Config struct {
	Brokers        []string
	MovementsTopic string
	AlertsTopic    string

	// Source is the CloudEvents source attribute of every message.
	Source string

	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with the standard topics.
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:        brokers,
		MovementsTopic: "inventory.movements",
		AlertsTopic:    "inventory.alerts",
		Source:         "/hvacstock/inventory",
		BatchTimeout:   10 * time.Millisecond,
		RequiredAcks:   -1,
		WriteTimeout:   10 * time.Second,
	}
}
