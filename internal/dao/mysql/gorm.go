// Package dao 提供数据访问层的初始化和全局数据库实例管理
// 负责建立 MySQL 连接、自动迁移表结构、初始化 Repository 层
package dao

import (
	"fmt"

	"nova_chat_server/internal/config"
	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// GormDB 全局 GORM 数据库实例
var GormDB *gorm.DB

// Repos 全局 Repository 实例集合
// 聚合所有 Repository，供 Service 层通过依赖注入使用
var Repos *repository.Repositories

// Init 初始化数据库连接和 Repository 层
// 执行步骤：
//  1. 从配置读取 MySQL 连接信息并构建 DSN
//  2. 使用 GORM 建立数据库连接
//  3. 执行 AutoMigrate 自动迁移表结构
//  4. 初始化全局 Repository 实例
func Init() {
	conf := config.GetConfig()

	// 构建 MySQL DSN 连接字符串
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.MysqlConfig.User,
		conf.MysqlConfig.Password,
		conf.MysqlConfig.Host,
		conf.MysqlConfig.Port,
		conf.MysqlConfig.DatabaseName,
	)

	var err error
	// TranslateError 让唯一索引冲突统一翻译成 gorm.ErrDuplicatedKey
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	// AutoMigrate 自动迁移表结构
	// 如果表不存在则创建，如果字段变更则更新结构
	err = GormDB.AutoMigrate(
		&model.UserInfo{},           // 用户信息表
		&model.Device{},             // 设备表
		&model.UserSession{},        // 登录会话表
		&model.Conversation{},       // 会话表
		&model.ConversationMember{}, // 会话成员表
		&model.Message{},            // 消息表
		&model.MessageHide{},        // 消息隐藏表
		&model.Call{},               // 通话表
		&model.CallParticipant{},    // 通话参与者表
	)
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	// 初始化全局 Repository 实例集合
	Repos = repository.NewRepositories(GormDB)
}
