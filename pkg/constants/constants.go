package constants

import "time"

const (
	CHANNEL_SIZE         = 100              // 连接写通道大小
	MAX_CONTENT_SIZE     = 16 * 1024        // 单条消息密文内容上限（字节）
	SESSION_CACHE_TTL    = 5 * time.Minute  // 会话凭证校验结果的缓存有效期
	PRESENCE_TTL         = 3 * time.Minute  // 在线状态标记的过期时间（进程崩溃后自愈为离线）
	HISTORY_CACHE_TTL    = 1 * time.Minute  // 聊天记录缓存有效期
	CONNECT_DEADLINE     = 10 * time.Second // 握手帧（connect 事件）的等待上限
	CATCHUP_WINDOW       = 72 * time.Hour   // 重连补投时回看的时间窗口
	CATCHUP_BATCH_LIMIT  = 200              // 重连补投单次处理的消息上限
	DEFAULT_RING_TIMEOUT = 45 * time.Second // 呼叫响铃超时
	DEFAULT_CALL_GRACE   = 10 * time.Second // 断线后通话保留的宽限期
)
