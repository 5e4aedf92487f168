package consumer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/internal/ws"
)

// EventConsumer 消费推送事件并投递到网关 Hub
// kafka 保证 at-least-once，重复投递由 Hub 侧的去重缓存吸收
type EventConsumer struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewEventConsumer(hub *ws.Hub, logger *zap.Logger) *EventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventConsumer{hub: hub, logger: logger}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *EventConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *EventConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (c *EventConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var env ws.Envelope
		if err := json.Unmarshal(message.Value, &env); err != nil {
			c.logger.Warn("反序列化事件失败，跳过", zap.Error(err))
			session.MarkMessage(message, "")
			continue
		}

		// 推送是尽力而为，投递失败不重试，直接标记消费
		c.hub.Publish(&env)
		session.MarkMessage(message, "")
	}
	return nil
}

// Start 在后台运行消费者组，ctx 取消后退出
func Start(ctx context.Context, brokers []string, groupID string, topic string, consumer *EventConsumer) error {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return err
	}

	go func() {
		defer client.Close()
		for {
			if err := client.Consume(ctx, []string{topic}, consumer); err != nil {
				consumer.logger.Error("消费者错误", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return nil
}
