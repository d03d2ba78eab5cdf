// Package call_kind_enum 定义通话类型枚举
package call_kind_enum

const (
	Audio int8 = iota // 语音通话
	Video             // 视频通话
)

// Valid 检查类型值是否在枚举范围内
func Valid(k int8) bool {
	return k == Audio || k == Video
}
