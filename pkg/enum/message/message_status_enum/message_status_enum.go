// Package message_status_enum 定义消息投递状态枚举
// 状态只能单向推进：已发送 -> 已送达 -> 已读，绝不回退
package message_status_enum

const (
	Sent      int8 = iota // 已发送（已落库，接收方还未收到）
	Delivered             // 已送达（接收方至少一台在线设备收到）
	Read                  // 已读（接收方确认阅读）
)
