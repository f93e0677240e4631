// Package settings 提供应用程序设置配置管理服务
//
// 主要功能：
//   - 管理商城后端的核心配置（数据库、Redis、验证码、短信网关）
//   - 支持配置文件和环境变量的双重配置来源
//   - 提供配置的默认值和回退机制
//
// 配置来源优先级：
//  1. 环境变量（最高优先级，适用于容器化部署）
//  2. 配置文件 (mallserviceconfig.ini)
//  3. 默认值（最低优先级，保证程序能正常运行）
//
// 使用示例：
//
//	settings := settings.NewCommonSettings()
//	redisAddr := fmt.Sprintf("%s:%d", settings.RedisHost, settings.RedisPort)
package settings

import (
	"fmt"
	"log"
	"os"
	"time"

	pathconfig "xiaoyumall/backend/common/configs"

	"github.com/spf13/viper"
)

// CommonSettings 应用程序通用设置结构体
//
// 配置字段说明：
//   - 数据库配置 [database]：DbHost, DbPort, DbUser, DbPassword, DbName
//   - Redis配置 [Redis]：RedisHost, RedisPort, RedisPassword, RedisDb
//   - 短信网关配置 [ShortMessage]：SmsProvider, SmsCredentialsFile, SmsGatewayTimeout
//
// 验证码配置 [Verify]：
//   - ImageCodeExpires: 图形验证码有效期（秒，默认300）
//   - SmsCodeExpires: 短信验证码有效期（秒，默认300）
//   - SendFlagExpires: 短信发送间隔锁（秒，默认60）
//   - SmsTemplateID: 短信模板ID（默认"1"）
//   - DailySendLimit: 每个手机号每天最多发送次数（0表示不限制）
//   - ArmLockOnGatewayFailure: 短信网关发送失败时是否仍然设置发送间隔锁（默认true）
//   - AtomicSendLock: 是否使用 SET NX 原子抢占发送锁（默认false）
//   - ExposeSmsCode: 是否在响应中返回短信验证码（仅开发环境使用，默认false）
type CommonSettings struct {
	// 数据库配置
	DbHost     string
	DbPort     int
	DbUser     string
	DbPassword string
	DbName     string

	// Redis配置
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDb       int

	// 验证码配置
	ImageCodeExpires        int
	SmsCodeExpires          int
	SendFlagExpires         int
	SmsTemplateID           string
	DailySendLimit          int
	ArmLockOnGatewayFailure bool
	AtomicSendLock          bool
	ExposeSmsCode           bool

	// 短信网关配置
	SmsProvider        string
	SmsCredentialsFile string
	SmsGatewayTimeout  int

	// 其他配置
	Debug bool

	// 内部使用的路径配置实例
	pathConfig *pathconfig.PathConfig
}

// NewCommonSettings 创建并返回一个新的CommonSettings实例
//
// 加载流程：默认值 -> 配置文件 -> 环境变量
func NewCommonSettings() *CommonSettings {
	settings := &CommonSettings{
		pathConfig: pathconfig.GetInstance(),
	}
	settings.setDefaultValues()
	settings.loadConfig()
	settings.loadFromEnvironment()
	return settings
}

// loadConfig 从配置文件加载配置，文件中未出现的键保留默认值
func (s *CommonSettings) loadConfig() {
	if err := pathconfig.InitViperConfig(); err != nil {
		log.Printf("警告: 无法读取配置文件: %v，使用默认配置", err)
		return
	}

	setString(&s.DbHost, "database.host")
	setInt(&s.DbPort, "database.port")
	setString(&s.DbUser, "database.user")
	setString(&s.DbPassword, "database.password")
	setString(&s.DbName, "database.name")

	setString(&s.RedisHost, "Redis.host")
	setInt(&s.RedisPort, "Redis.port")
	setString(&s.RedisPassword, "Redis.pwd")
	setInt(&s.RedisDb, "Redis.db")

	setInt(&s.ImageCodeExpires, "Verify.image_code_expires")
	setInt(&s.SmsCodeExpires, "Verify.sms_code_expires")
	setInt(&s.SendFlagExpires, "Verify.send_flag_expires")
	setString(&s.SmsTemplateID, "Verify.sms_template_id")
	setInt(&s.DailySendLimit, "Verify.daily_send_limit")
	setBool(&s.ArmLockOnGatewayFailure, "Verify.arm_lock_on_gateway_failure")
	setBool(&s.AtomicSendLock, "Verify.atomic_send_lock")
	setBool(&s.ExposeSmsCode, "Verify.expose_sms_code")

	setString(&s.SmsProvider, "ShortMessage.provider")
	setString(&s.SmsCredentialsFile, "ShortMessage.credentials_file")
	setInt(&s.SmsGatewayTimeout, "ShortMessage.timeout")

	setBool(&s.Debug, "app.debug")
}

// setDefaultValues 设置默认配置值
func (s *CommonSettings) setDefaultValues() {
	s.DbHost = "localhost"
	s.DbPort = 3306
	s.DbUser = "root"
	s.DbPassword = "root"
	s.DbName = "xiaoyu_mall"

	s.RedisHost = "localhost"
	s.RedisPort = 6379
	s.RedisPassword = ""
	s.RedisDb = 2 // verify_code 库

	s.ImageCodeExpires = 300
	s.SmsCodeExpires = 300
	s.SendFlagExpires = 60
	s.SmsTemplateID = "1"
	s.DailySendLimit = 0
	s.ArmLockOnGatewayFailure = true
	s.AtomicSendLock = false
	s.ExposeSmsCode = false

	s.SmsProvider = "log"
	s.SmsCredentialsFile = "smsgateway.ini"
	s.SmsGatewayTimeout = 5

	s.Debug = false
}

// loadFromEnvironment 从环境变量加载配置，数值解析失败则忽略
func (s *CommonSettings) loadFromEnvironment() {
	envString(&s.DbHost, "DB_HOST")
	envInt(&s.DbPort, "DB_PORT")
	envString(&s.DbUser, "DB_USER")
	envString(&s.DbPassword, "DB_PASSWORD")
	envString(&s.DbName, "DB_NAME")

	envString(&s.RedisHost, "REDIS_HOST")
	envInt(&s.RedisPort, "REDIS_PORT")
	envString(&s.RedisPassword, "REDIS_PASSWORD")
	envInt(&s.RedisDb, "REDIS_DB")

	envInt(&s.ImageCodeExpires, "IMAGE_CODE_EXPIRES")
	envInt(&s.SmsCodeExpires, "SMS_CODE_EXPIRES")
	envInt(&s.SendFlagExpires, "SEND_FLAG_EXPIRES")
	envString(&s.SmsTemplateID, "SMS_TEMPLATE_ID")
	envInt(&s.DailySendLimit, "SMS_DAILY_LIMIT")
	envBool(&s.ArmLockOnGatewayFailure, "ARM_LOCK_ON_GATEWAY_FAILURE")
	envBool(&s.AtomicSendLock, "ATOMIC_SEND_LOCK")
	envBool(&s.ExposeSmsCode, "EXPOSE_SMS_CODE")

	envString(&s.SmsProvider, "SMS_PROVIDER")
	envString(&s.SmsCredentialsFile, "SMS_CREDENTIALS_FILE")
	envInt(&s.SmsGatewayTimeout, "SMS_GATEWAY_TIMEOUT")

	envBool(&s.Debug, "DEBUG")
}

// RedisAddr 返回 host:port 形式的Redis地址
func (s *CommonSettings) RedisAddr() string {
	return fmt.Sprintf("%s:%d", s.RedisHost, s.RedisPort)
}

// MysqlDSN 返回go-sql-driver/mysql使用的DSN
func (s *CommonSettings) MysqlDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True",
		s.DbUser, s.DbPassword, s.DbHost, s.DbPort, s.DbName)
}

// Seconds 将秒数配置转换为time.Duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetConfigPath 获取配置文件路径，自动检查文件是否存在
func (s *CommonSettings) GetConfigPath(filename string) string {
	if s.pathConfig == nil {
		return filename
	}
	return s.pathConfig.GetConfigPath(filename)
}

func setString(dst *string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetString(key)
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func setBool(dst *bool, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetBool(key)
	}
}

func envString(dst *string, name string) {
	if val, exists := os.LookupEnv(name); exists {
		*dst = val
	}
}

func envInt(dst *int, name string) {
	if val, exists := os.LookupEnv(name); exists {
		if v, err := parseInt(val); err == nil {
			*dst = v
		}
	}
}

func envBool(dst *bool, name string) {
	if val, exists := os.LookupEnv(name); exists {
		*dst = val == "true" || val == "1" || val == "yes"
	}
}

// parseInt 将字符串解析为整数，用于环境变量的数值解析
func parseInt(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
