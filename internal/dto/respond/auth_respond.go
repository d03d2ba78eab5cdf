// Package respond 定义接口出参结构
package respond

// TokenPairRespond 凭证对
type TokenPairRespond struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token 有效期（秒）
}

// LoginRespond 登录/注册成功响应
type LoginRespond struct {
	UserUuid   string `json:"user_uuid"`
	DeviceUuid string `json:"device_uuid"`
	Nickname   string `json:"nickname"`
	Avatar     string `json:"avatar"`
	TokenPairRespond
}

// UserInfoRespond 用户资料响应
type UserInfoRespond struct {
	Uuid      string `json:"uuid"`
	Nickname  string `json:"nickname"`
	Telephone string `json:"telephone"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
}

// DeviceRespond 设备列表条目
type DeviceRespond struct {
	Uuid       string `json:"uuid"`
	Name       string `json:"name"`
	Platform   string `json:"platform"`
	LastSeenAt string `json:"last_seen_at"`
	Current    bool   `json:"current"` // 是否为发起本次请求的设备
}
