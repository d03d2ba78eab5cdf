// Package request 定义接口入参结构
// 字段校验规则通过 validator tag 声明，handler 层统一翻译错误消息
package request

// RegisterRequest 注册请求
type RegisterRequest struct {
	Telephone  string `json:"telephone" binding:"required,len=11"`
	Password   string `json:"password" binding:"required,min=6,max=32"`
	Nickname   string `json:"nickname" binding:"required,max=20"`
	DeviceName string `json:"device_name" binding:"max=50"`
	Platform   string `json:"platform" binding:"max=20"`
}

// LoginRequest 登录请求
// DeviceUuid 可选：携带则复用已有设备记录，否则登记为新设备
type LoginRequest struct {
	Telephone  string `json:"telephone" binding:"required,len=11"`
	Password   string `json:"password" binding:"required"`
	DeviceUuid string `json:"device_uuid" binding:"max=20"`
	DeviceName string `json:"device_name" binding:"max=50"`
	Platform   string `json:"platform" binding:"max=20"`
}

// RefreshRequest 刷新凭证请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RemoveDeviceRequest 移除设备请求
type RemoveDeviceRequest struct {
	DeviceUuid string `json:"device_uuid" binding:"required,max=20"`
}
