package mq

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// EventProducer 把推送事件写入 kafka，消费端负责投递到网关
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewEventProducer(brokers []string, topic string, logger *zap.Logger) (*EventProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}, nil
}

// Send 序列化事件并写入 topic，key 取会话 ID，同一会话落同一分区保证有序
func (p *EventProducer) Send(key string, event interface{}) error {
	bytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送事件到 kafka 失败: %w", err)
	}

	p.logger.Debug("事件已写入 kafka",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *EventProducer) Close() error {
	return p.producer.Close()
}
