package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// KafkaConfig holds Kafka mirror configuration.
type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	Topic            string   `yaml:"topic"`
	CompressionCodec string   `yaml:"compression_codec,omitempty"` // none, gzip, snappy, lz4, zstd
	RequiredAcks     int16    `yaml:"required_acks,omitempty"`
	ClientID         string   `yaml:"client_id,omitempty"`
}

// KafkaMirror publishes events to a Kafka topic, keyed by service ID so one
// service's events stay in partition order.
type KafkaMirror struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	closed   atomic.Bool
}

// NewKafkaMirror creates a Kafka mirror.
func NewKafkaMirror(config KafkaConfig) (*KafkaMirror, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("no topic specified")
	}
	if config.ClientID == "" {
		config.ClientID = "logpatrol"
	}
	if config.RequiredAcks == 0 {
		config.RequiredAcks = 1
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(config.RequiredAcks)
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.ClientID = config.ClientID

	switch config.CompressionCodec {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaMirror{config: config, producer: producer}, nil
}

// Publish sends one event to the topic.
func (k *KafkaMirror) Publish(_ context.Context, event *types.Event) error {
	if k.closed.Load() {
		return fmt.Errorf("kafka mirror is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.config.Topic,
		Key:   sarama.StringEncoder(event.ServiceID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("category"), Value: []byte(event.Category)},
		},
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send to kafka: %w", err)
	}
	return nil
}

// Close shuts down the producer.
func (k *KafkaMirror) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	return k.producer.Close()
}

// Name returns the mirror name.
func (k *KafkaMirror) Name() string {
	return "kafka"
}
