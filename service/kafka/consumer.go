package kafka

import (
	"context"

	"GProject/logger"

	"github.com/Shopify/sarama"
)

type ConsumerGroupHandler struct{}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Infof("consumer group setup")
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Infof("consumer group cleanup")
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		handler, err := GetHandler(msg.Topic)
		if err != nil {
			// 没注册 handler 的消息直接跳过
			logger.Warnf("no handler for topic %s: %v", msg.Topic, err)
			session.MarkMessage(msg, "")
			continue
		}
		if err := handler(msg.Topic, msg.Key, msg.Value); err != nil {
			// 失败不提交 offset：中断本轮消费，重平衡后从上次提交处重放。
			// 群事件的重算是幂等的，重放安全；不可恢复的脏消息由 handler
			// 自行吞掉返回 nil。
			logger.Errorf("handler error for topic %s: %v", msg.Topic, err)
			return err
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartConsumerGroup 阻塞消费，直到 ctx 取消。
func StartConsumerGroup(ctx context.Context, brokers []string, groupID string, topics []string) error {
	config := sarama.NewConfig()
	config.Version = sarama.V2_1_0_0
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return err
	}
	defer func() { _ = group.Close() }()

	go func() {
		for err := range group.Errors() {
			logger.Errorf("consumer group error: %v", err)
		}
	}()

	handler := &ConsumerGroupHandler{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := group.Consume(ctx, topics, handler); err != nil {
			logger.Errorf("consume error: %v", err)
		}
	}
}
