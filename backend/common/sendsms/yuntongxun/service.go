package yuntongxun

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// 创建logger
var logger = log.New(log.Writer(), "[Yuntongxun] ", log.LstdFlags)

// statusOK 容联云通讯接口成功状态码
const statusOK = "000000"

// Config 容联云通讯账户配置
type Config struct {
	AccountSid  string `ini:"account_sid"`
	AuthToken   string `ini:"auth_token"`
	AppID       string `ini:"app_id"`
	ServerIP    string `ini:"server_ip"`
	ServerPort  string `ini:"server_port"`
	SoftVersion string `ini:"soft_version"`
}

// DefaultConfig 沙箱环境默认地址，生产环境为 app.cloopen.com:8883
func DefaultConfig() Config {
	return Config{
		ServerIP:    "sandboxapp.cloopen.com",
		ServerPort:  "8883",
		SoftVersion: "2013-12-26",
	}
}

// SmsService 容联云通讯模板短信客户端
type SmsService struct {
	config     Config
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewSmsService 创建客户端，timeout为单次请求超时
func NewSmsService(config Config, timeout time.Duration) *SmsService {
	return &SmsService{
		config:     config,
		baseURL:    fmt.Sprintf("https://%s:%s", config.ServerIP, config.ServerPort),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type templateSMSRequest struct {
	To         string   `json:"to"`
	AppID      string   `json:"appId"`
	TemplateID string   `json:"templateId"`
	Datas      []string `json:"datas"`
}

type templateSMSResponse struct {
	StatusCode  string `json:"statusCode"`
	StatusMsg   string `json:"statusMsg"`
	TemplateSMS struct {
		DateCreated   string `json:"dateCreated"`
		SmsMessageSid string `json:"smsMessageSid"`
	} `json:"templateSMS"`
}

// SendTemplate 发送模板短信
func (s *SmsService) SendTemplate(ctx context.Context, to string, templateID string, datas []string) error {
	timestamp := s.now().Format("20060102150405")

	body, err := json.Marshal(templateSMSRequest{
		To:         to,
		AppID:      s.config.AppID,
		TemplateID: templateID,
		Datas:      datas,
	})
	if err != nil {
		return fmt.Errorf("准备请求数据失败: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s/Accounts/%s/SMS/TemplateSMS?sig=%s",
		s.baseURL, s.config.SoftVersion, s.config.AccountSid, s.signature(timestamp))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	req.Header.Set("Authorization", s.authorization(timestamp))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var result templateSMSResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败(HTTP %d): %w", resp.StatusCode, err)
	}

	if result.StatusCode != statusOK {
		logger.Printf("短信发送失败: statusCode=%s statusMsg=%s", result.StatusCode, result.StatusMsg)
		return fmt.Errorf("短信发送失败: %s %s", result.StatusCode, result.StatusMsg)
	}

	return nil
}

// signature 请求签名：MD5(账户Id + 账户授权令牌 + 时间戳)，大写十六进制
func (s *SmsService) signature(timestamp string) string {
	sum := md5.Sum([]byte(s.config.AccountSid + s.config.AuthToken + timestamp))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// authorization 包头验证信息：Base64(账户Id:时间戳)
func (s *SmsService) authorization(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(s.config.AccountSid + ":" + timestamp))
}
