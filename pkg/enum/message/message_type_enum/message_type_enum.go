// Package message_type_enum 定义消息类型枚举
package message_type_enum

const (
	Text   int8 = iota // 文本消息（内容为端到端加密后的密文）
	Voice              // 语音消息
	File               // 文件消息
	Signal             // 信令消息（通话相关的透传数据）
)

// Valid 检查类型值是否在枚举范围内
func Valid(t int8) bool {
	return t >= Text && t <= Signal
}
