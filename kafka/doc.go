// Package kafka provides the shared Kafka connection plumbing used by the
// Realtime source and the AlertKafka sink.
//
// It wraps segmentio/kafka-go with TLS/SASL transport setup, retry and
// backoff handling, and structured logging.
//
// # Architecture
//
//   - kafka: Config, message/event types, dialer and transport construction
//   - kafka/producer: message publishing with bounded retries
//   - kafka/consumer: message consumption with managed consumer groups
//
// # Configuration
//
// All settings are provided via Config with ApplyDefaults()/Validate():
//
//	kafka:
//	  brokers: ["localhost:9092"]
//	  group_id: "my-group"
package kafka
