package chat

import "time"

// TimerHandle 定时器句柄
// Stop 返回 false 表示回调已经触发或正在触发
type TimerHandle interface {
	Stop() bool
}

// Scheduler 定时任务调度接口
// 响铃超时和断线宽限期都通过它注册，测试中注入虚拟时钟实现
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

// realScheduler 生产实现，直接包装 time.AfterFunc
type realScheduler struct{}

func NewRealScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}
