// Package call_status_enum 定义通话状态枚举
// ringing -> in_progress -> {ended | missed | declined}，终态不可再变
package call_status_enum

const (
	Ringing    int8 = iota // 响铃中
	InProgress             // 通话中
	Ended                  // 已结束
	Missed                 // 未接听（响铃超时）
	Declined               // 已拒绝
)

// IsTerminal 判断是否为终态
func IsTerminal(s int8) bool {
	return s == Ended || s == Missed || s == Declined
}
