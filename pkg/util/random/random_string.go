package random

import (
	"crypto/rand"
	"math/big"
	"time"
)

// GetNowAndLenRandomString 生成带时间戳前缀的随机字符串（用于实体 UUID）
// 格式: YYMMDD + 字母数字混合
// 示例: 241230AbCdE1234567
func GetNowAndLenRandomString(length int) string {
	result := make([]byte, length)
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	charsetLen := big.NewInt(int64(len(charset)))
	for i := range result {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			result[i] = 'x'
			continue
		}
		result[i] = charset[n.Int64()]
	}
	return time.Now().Format("060102") + string(result)
}

// 实体 UUID 前缀约定：U 用户，D 设备，C 会话，V 通话
const uuidRandomLen = 13

// NewUserUuid 生成用户 UUID
func NewUserUuid() string {
	return "U" + GetNowAndLenRandomString(uuidRandomLen)
}

// NewDeviceUuid 生成设备 UUID
func NewDeviceUuid() string {
	return "D" + GetNowAndLenRandomString(uuidRandomLen)
}

// NewConversationUuid 生成会话 UUID
func NewConversationUuid() string {
	return "C" + GetNowAndLenRandomString(uuidRandomLen)
}
