// Package sendsms 短信网关统一入口
//
// 各服务商实现放在子包中（yuntongxun、tencent），本包负责：
//   - 定义网关接口 Gateway
//   - 从凭据文件（INI）加载服务商配置
//   - 按配置创建网关实例
package sendsms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"xiaoyumall/backend/common/sendsms/tencent"
	"xiaoyumall/backend/common/sendsms/yuntongxun"

	"gopkg.in/ini.v1"
)

// 创建logger
var logger = log.New(log.Writer(), "[SendSms] ", log.LstdFlags)

// ErrGatewayFailure 短信网关发送失败
var ErrGatewayFailure = errors.New("短信网关发送失败")

// Gateway 模板短信发送接口
type Gateway interface {
	// SendTemplate 向to发送模板短信，datas按顺序替换模板中的占位符
	SendTemplate(ctx context.Context, to string, templateID string, datas []string) error
}

// Provider 短信服务商名称
const (
	ProviderLog        = "log"
	ProviderYuntongxun = "yuntongxun"
	ProviderTencent    = "tencent"
)

// NewGateway 根据服务商名称创建网关，credentialsPath为INI凭据文件路径
func NewGateway(provider string, credentialsPath string, timeout time.Duration) (Gateway, error) {
	switch strings.ToLower(provider) {
	case "", ProviderLog:
		logger.Printf("使用日志短信网关，短信不会真正发送")
		return &LogGateway{}, nil

	case ProviderYuntongxun:
		cfg, err := LoadYuntongxunConfig(credentialsPath)
		if err != nil {
			return nil, err
		}
		return yuntongxun.NewSmsService(cfg, timeout), nil

	case ProviderTencent:
		cfg, err := LoadTencentConfig(credentialsPath)
		if err != nil {
			return nil, err
		}
		svc, err := tencent.NewSmsService(cfg, timeout)
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("不支持的短信服务商: %s", provider)
	}
}

// LoadYuntongxunConfig 从凭据文件的[yuntongxun]节读取容联云通讯配置
func LoadYuntongxunConfig(path string) (yuntongxun.Config, error) {
	cfg := yuntongxun.DefaultConfig()
	if err := loadSection(path, ProviderYuntongxun, &cfg); err != nil {
		return cfg, err
	}
	if cfg.AccountSid == "" || cfg.AuthToken == "" || cfg.AppID == "" {
		return cfg, fmt.Errorf("凭据文件 %s 缺少 account_sid/auth_token/app_id", path)
	}
	return cfg, nil
}

// LoadTencentConfig 从凭据文件的[tencent]节读取腾讯云短信配置
func LoadTencentConfig(path string) (tencent.Config, error) {
	cfg := tencent.DefaultConfig()
	if err := loadSection(path, ProviderTencent, &cfg); err != nil {
		return cfg, err
	}
	if cfg.SecretId == "" || cfg.SecretKey == "" || cfg.SdkAppId == "" {
		return cfg, fmt.Errorf("凭据文件 %s 缺少 secret_id/secret_key/sdk_app_id", path)
	}
	return cfg, nil
}

func loadSection(path string, section string, v interface{}) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("读取短信凭据文件失败: %w", err)
	}
	if !file.HasSection(section) {
		return fmt.Errorf("凭据文件 %s 中没有[%s]节", path, section)
	}
	if err := file.Section(section).MapTo(v); err != nil {
		return fmt.Errorf("解析[%s]节失败: %w", section, err)
	}
	return nil
}

// LogGateway 开发环境使用，只记录日志不发送
type LogGateway struct{}

// SendTemplate 记录一条模拟发送日志
func (g *LogGateway) SendTemplate(ctx context.Context, to string, templateID string, datas []string) error {
	logger.Printf("[模拟发送] to=%s template=%s datas=%v", to, templateID, datas)
	return nil
}
