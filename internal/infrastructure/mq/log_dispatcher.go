package mq

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher 未启用 Kafka 时的降级实现，只记录日志
// 本地开发环境不依赖 Kafka 也能跑通完整流程
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Notify(_ context.Context, notice PushNotice) error {
	zap.L().Info("push notice (kafka disabled)",
		zap.String("user_id", notice.UserId),
		zap.String("kind", notice.Kind))
	return nil
}

func (d *LogDispatcher) Close() error { return nil }
