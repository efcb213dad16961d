package kafka

import (
	"github.com/Shopify/sarama"
)

var (
	KafkaClient  sarama.Client
	syncProducer sarama.SyncProducer
)

func InitKafkaClient(brokers []string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Partitioner = sarama.NewHashPartitioner // 同 key 进同分区，保证组内事件有序

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return err
	}
	KafkaClient = client
	return nil
}

func InitSyncProducerFromClient() error {
	p, err := sarama.NewSyncProducerFromClient(KafkaClient)
	if err != nil {
		return err
	}
	syncProducer = p
	return nil
}

// SendSync 按 key 路由发送（key 通常是 groupID）
func SendSync(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := syncProducer.SendMessage(msg)
	return err
}
