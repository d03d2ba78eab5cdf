// Package mq 负责把离线推送任务投递给下游推送系统
package mq

import "context"

// PushNotice 推送任务载荷
// 网关只负责投递，具体的厂商通道选择由下游推送服务处理
type PushNotice struct {
	UserId  string `json:"user_id"`
	Kind    string `json:"kind"` // message / call
	Payload any    `json:"payload"`
}

// Dispatcher 推送分发接口
// 投递失败不影响消息主流程，调用方只记录日志
type Dispatcher interface {
	Notify(ctx context.Context, notice PushNotice) error
	Close() error
}
