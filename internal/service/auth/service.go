// Package auth 实现注册、登录、凭证刷新和设备管理
// 所有吊销路径（注销、顶替、删设备）都必须同步通知 gate 写失效标记，
// 否则被吊销的凭证会在缓存 TTL 内继续通过校验
package auth

import (
	"context"
	"time"

	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/dto/request"
	"nova_chat_server/internal/dto/respond"
	"nova_chat_server/internal/model"
	"nova_chat_server/internal/service/gate"
	"nova_chat_server/pkg/errorx"
	"nova_chat_server/pkg/util/jwt"
	"nova_chat_server/pkg/util/random"

	"go.uber.org/zap"
)

// Service 认证服务
type Service struct {
	userRepo    repository.UserRepository
	deviceRepo  repository.DeviceRepository
	sessionRepo repository.SessionRepository
	gate        *gate.Service
	now         func() time.Time
}

func NewService(
	userRepo repository.UserRepository,
	deviceRepo repository.DeviceRepository,
	sessionRepo repository.SessionRepository,
	g *gate.Service,
) *Service {
	return &Service{
		userRepo:    userRepo,
		deviceRepo:  deviceRepo,
		sessionRepo: sessionRepo,
		gate:        g,
		now:         time.Now,
	}
}

// Register 注册新用户并直接登录
func (s *Service) Register(ctx context.Context, req request.RegisterRequest) (*respond.LoginRespond, error) {
	_, err := s.userRepo.FindByTelephone(req.Telephone)
	if err == nil {
		return nil, errorx.New(errorx.CodeUserExist, "该手机号已注册")
	}
	if !errorx.IsNotFound(err) {
		return nil, err
	}

	user := &model.UserInfo{
		Uuid:        random.NewUserUuid(),
		Nickname:    req.Nickname,
		Telephone:   req.Telephone,
		RawPassword: req.Password, // BeforeSave 钩子里做 bcrypt
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	device, err := s.registerDevice(user.Uuid, "", req.DeviceName, req.Platform)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user, device)
}

// Login 登录并签发凭证
// 同一台设备重复登录时旧凭证立即被顶替吊销
func (s *Service) Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error) {
	user, err := s.userRepo.FindByTelephone(req.Telephone)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeUserNotExist, "用户不存在")
		}
		return nil, err
	}
	if !user.CheckPassword(req.Password) {
		return nil, errorx.New(errorx.CodeInvalidPassword, "密码错误")
	}

	device, err := s.registerDevice(user.Uuid, req.DeviceUuid, req.DeviceName, req.Platform)
	if err != nil {
		return nil, err
	}

	// 顶替：删除该设备的旧会话行并主动吊销缓存中的旧凭证
	if err := s.revokeDeviceSessions(ctx, user.Uuid, device.Uuid); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user, device)
}

// Refresh 用 refresh token 换取新的凭证对
// 旧的凭证对（access 和 refresh）整体作废，refresh token 一次性使用
func (s *Service) Refresh(ctx context.Context, req request.RefreshRequest) (*respond.TokenPairRespond, error) {
	claims, err := jwt.ParseToken(req.RefreshToken)
	if err != nil || claims.TokenID == "" {
		return nil, errorx.ErrUnauthorized
	}

	hash := gate.HashCredential(req.RefreshToken)
	session, err := s.sessionRepo.FindActiveByRefreshHash(hash, s.now())
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.ErrUnauthorized
		}
		return nil, err
	}
	if session.UserUuid != claims.UserID || session.DeviceUuid != claims.DeviceID {
		return nil, errorx.ErrUnauthorized
	}

	user, err := s.userRepo.FindByUuid(claims.UserID)
	if err != nil {
		return nil, errorx.ErrUnauthorized
	}

	if err := s.revokeDeviceSessions(ctx, claims.UserID, claims.DeviceID); err != nil {
		return nil, err
	}
	login, err := s.issueSession(ctx, user, &model.Device{Uuid: claims.DeviceID, UserUuid: claims.UserID})
	if err != nil {
		return nil, err
	}
	pair := login.TokenPairRespond
	return &pair, nil
}

// Logout 注销当前设备
func (s *Service) Logout(ctx context.Context, userUuid, deviceUuid string) error {
	return s.revokeDeviceSessions(ctx, userUuid, deviceUuid)
}

// LogoutAll 注销用户的全部设备
func (s *Service) LogoutAll(ctx context.Context, userUuid string) error {
	sessions, err := s.sessionRepo.FindByUser(userUuid)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByUser(userUuid); err != nil {
		return err
	}
	hashes := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		hashes = append(hashes, sess.AccessHash)
	}
	s.gate.Revoke(ctx, hashes...)
	return nil
}

// Devices 列出用户的登录设备
func (s *Service) Devices(userUuid, currentDeviceUuid string) ([]respond.DeviceRespond, error) {
	devices, err := s.deviceRepo.FindByUser(userUuid)
	if err != nil {
		return nil, err
	}
	rsp := make([]respond.DeviceRespond, 0, len(devices))
	for _, d := range devices {
		item := respond.DeviceRespond{
			Uuid:     d.Uuid,
			Name:     d.Name,
			Platform: d.Platform,
			Current:  d.Uuid == currentDeviceUuid,
		}
		if d.LastSeenAt.Valid {
			item.LastSeenAt = d.LastSeenAt.Time.Format(time.DateTime)
		}
		rsp = append(rsp, item)
	}
	return rsp, nil
}

// RemoveDevice 移除一台设备并吊销其全部凭证
func (s *Service) RemoveDevice(ctx context.Context, userUuid, deviceUuid string) error {
	device, err := s.deviceRepo.FindByUuid(deviceUuid)
	if err != nil {
		return err
	}
	if device.UserUuid != userUuid {
		return errorx.ErrNotParticipant
	}
	if err := s.deviceRepo.Delete(deviceUuid); err != nil {
		return err
	}
	return s.revokeDeviceSessions(ctx, userUuid, deviceUuid)
}

// Me 查询当前用户资料
func (s *Service) Me(userUuid string) (*respond.UserInfoRespond, error) {
	user, err := s.userRepo.FindByUuid(userUuid)
	if err != nil {
		return nil, err
	}
	return &respond.UserInfoRespond{
		Uuid:      user.Uuid,
		Nickname:  user.Nickname,
		Telephone: user.Telephone,
		Email:     user.Email,
		Avatar:    user.Avatar,
	}, nil
}

// registerDevice 查找或登记设备
func (s *Service) registerDevice(userUuid, deviceUuid, name, platform string) (*model.Device, error) {
	if deviceUuid != "" {
		device, err := s.deviceRepo.FindByUuid(deviceUuid)
		if err == nil && device.UserUuid == userUuid {
			return device, nil
		}
		if err != nil && !errorx.IsNotFound(err) {
			return nil, err
		}
		// 设备不存在或不属于该用户，按新设备登记
	}
	device := &model.Device{
		Uuid:     random.NewDeviceUuid(),
		UserUuid: userUuid,
		Name:     name,
		Platform: platform,
	}
	if err := s.deviceRepo.Create(device); err != nil {
		return nil, err
	}
	return device, nil
}

// revokeDeviceSessions 删除某台设备的会话行并吊销其在途凭证
func (s *Service) revokeDeviceSessions(ctx context.Context, userUuid, deviceUuid string) error {
	sessions, err := s.sessionRepo.FindByUserAndDevice(userUuid, deviceUuid)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByUserAndDevice(userUuid, deviceUuid); err != nil {
		return err
	}
	hashes := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		hashes = append(hashes, sess.AccessHash)
	}
	s.gate.Revoke(ctx, hashes...)
	return nil
}

// issueSession 签发凭证对并落库会话行
func (s *Service) issueSession(_ context.Context, user *model.UserInfo, device *model.Device) (*respond.LoginRespond, error) {
	accessToken, err := jwt.GenerateAccessToken(user.Uuid, device.Uuid)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "签发凭证失败")
	}
	refreshToken, _, err := jwt.GenerateRefreshToken(user.Uuid, device.Uuid)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "签发凭证失败")
	}

	now := s.now()
	session := &model.UserSession{
		UserUuid:         user.Uuid,
		DeviceUuid:       device.Uuid,
		AccessHash:       gate.HashCredential(accessToken),
		RefreshHash:      gate.HashCredential(refreshToken),
		ExpiresAt:        now.Add(jwt.AccessTokenExpiry()),
		RefreshExpiresAt: now.Add(jwt.RefreshTokenExpiry()),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastOnline(user.Uuid, now); err != nil {
		zap.L().Warn("update last_online failed", zap.String("user", user.Uuid), zap.Error(err))
	}

	return &respond.LoginRespond{
		UserUuid:   user.Uuid,
		DeviceUuid: device.Uuid,
		Nickname:   user.Nickname,
		Avatar:     user.Avatar,
		TokenPairRespond: respond.TokenPairRespond{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(jwt.AccessTokenExpiry().Seconds()),
		},
	}, nil
}
