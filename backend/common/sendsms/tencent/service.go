package tencent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	sms "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/sms/v20210111"
)

// 创建logger
var logger = log.New(log.Writer(), "[TencentSMS] ", log.LstdFlags)

// Config 腾讯云短信配置
type Config struct {
	SecretId  string `ini:"secret_id"`
	SecretKey string `ini:"secret_key"`
	Region    string `ini:"region"`
	SdkAppId  string `ini:"sdk_app_id"`
	SignName  string `ini:"sign_name"`
	Endpoint  string `ini:"endpoint"`
}

// DefaultConfig 默认地域和接入点
func DefaultConfig() Config {
	return Config{
		Region:   "ap-guangzhou",
		Endpoint: "sms.tencentcloudapi.com",
	}
}

// SmsService 腾讯云短信服务，客户端在创建时初始化一次并复用
type SmsService struct {
	config Config
	client *sms.Client
}

// NewSmsService 创建新的短信服务实例
func NewSmsService(config Config, timeout time.Duration) (*SmsService, error) {
	credential := common.NewCredential(config.SecretId, config.SecretKey)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = config.Endpoint
	if timeout > 0 {
		cpf.HttpProfile.ReqTimeout = int((timeout + time.Second - 1) / time.Second)
	}

	client, err := sms.NewClient(credential, config.Region, cpf)
	if err != nil {
		logger.Printf("创建短信客户端失败: %v", err)
		return nil, fmt.Errorf("创建短信客户端失败: %w", err)
	}

	logger.Printf("短信服务初始化完成，使用SecretId: %s", maskSecret(config.SecretId))

	return &SmsService{
		config: config,
		client: client,
	}, nil
}

// SendTemplate 发送模板短信，to为国内手机号或带+国家码的号码
func (s *SmsService) SendTemplate(ctx context.Context, to string, templateID string, datas []string) error {
	request := sms.NewSendSmsRequest()
	request.PhoneNumberSet = common.StringPtrs([]string{FormatPhoneNumber(to)})
	request.TemplateId = common.StringPtr(templateID)
	request.SignName = common.StringPtr(s.config.SignName)
	request.TemplateParamSet = common.StringPtrs(datas)
	request.SmsSdkAppId = common.StringPtr(s.config.SdkAppId)

	response, err := s.client.SendSmsWithContext(ctx, request)
	if err != nil {
		var sdkErr *sdkerrors.TencentCloudSDKError
		if errors.As(err, &sdkErr) {
			logger.Printf("腾讯云API错误: %v", err)
			return fmt.Errorf("腾讯云API错误: %w", err)
		}
		logger.Printf("发送短信失败: %v", err)
		return fmt.Errorf("发送短信失败: %w", err)
	}

	for _, statusInfo := range response.Response.SendStatusSet {
		if statusInfo.Code == nil || *statusInfo.Code != "Ok" {
			message := ""
			if statusInfo.Message != nil {
				message = *statusInfo.Message
			}
			logger.Printf("短信发送失败: %s", message)
			return fmt.Errorf("短信发送失败: %s", message)
		}
	}

	return nil
}

// FormatPhoneNumber 转换为E.164格式，未带国家码的号码默认中国大陆(+86)
func FormatPhoneNumber(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+86" + phone
}

func maskSecret(secret string) string {
	if len(secret) <= 5 {
		return "*****"
	}
	return secret[:5] + "*****"
}
