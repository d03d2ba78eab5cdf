package mq

import (
	"context"
	"encoding/json"
	"time"

	"nova_chat_server/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaDispatcher 基于 Kafka 的推送分发器
// 以 user_id 作为消息 key，保证同一用户的推送落在同一分区有序
type KafkaDispatcher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaDispatcher(cfg *config.KafkaConfig) *KafkaDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.HostPort),
		Topic:                  cfg.PushTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           time.Duration(cfg.Timeout) * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		// 异步模式，失败回调里记日志，不阻塞消息主流程
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				zap.L().Error("push notice dispatch failed",
					zap.Int("count", len(messages)),
					zap.Error(err))
			}
		},
	}
	return &KafkaDispatcher{
		writer:  writer,
		timeout: time.Duration(cfg.Timeout) * time.Second,
	}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, notice PushNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notice.UserId),
		Value: data,
	})
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
