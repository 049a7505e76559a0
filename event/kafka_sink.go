package event

import (
	"encoding/json"

	"github.com/Shopify/sarama"

	"github.com/klaytn/kale-pool/internal/errkind"
)

// KafkaSink mirrors every published event onto a Kafka topic via an
// AsyncProducer.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaSink connects an async producer against brokers. Errors from the
// producer's error channel are logged, not surfaced, since event mirroring
// is best-effort and must never block the core lifecycle loops.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "event: connect kafka producer")
	}

	sink := &KafkaSink{producer: producer, topic: topic}
	go sink.drainErrors()
	return sink, nil
}

func (s *KafkaSink) drainErrors() {
	for err := range s.producer.Errors() {
		logger.Warn("kafka publish failed", "err", err)
	}
}

// Publish implements Sink.
func (s *KafkaSink) Publish(kind Kind, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errkind.Wrap(errkind.KindPermanentBadRequest, err, "event: marshal payload")
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(string(kind)),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close releases the underlying producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
