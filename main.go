package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"xiaoyumall/backend/common/auth/imageverify"
	"xiaoyumall/backend/common/auth/smsverify"
	"xiaoyumall/backend/common/captcha"
	"xiaoyumall/backend/common/configs/settings"
	"xiaoyumall/backend/common/metrics"
	"xiaoyumall/backend/common/sendsms"
	"xiaoyumall/backend/common/utils/datahandle"
	mainhttp "xiaoyumall/backend/main/http"
	"xiaoyumall/backend/main/users"
)

// 日志对象
var (
	logger    *log.Logger
	secLogger *log.Logger
)

// 设置日志
func setupLogging(logLevel string) {
	// 优先使用环境变量指定的日志目录
	// 如果以root运行，则使用/var/log目录
	var logDir string
	if envLogDir := os.Getenv("XIAOYUMALL_LOG_DIR"); envLogDir != "" {
		logDir = envLogDir
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil || homeDir == "/root" {
			logDir = "/var/log/xiaoyumall_logs"
		} else {
			logDir = filepath.Join(homeDir, "xiaoyumall_logs")
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Printf("无法创建日志目录: %v\n", err)
		os.Exit(1)
	}

	// 主应用日志
	appLogFile, err := os.OpenFile(
		filepath.Join(logDir, "app.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0644,
	)
	if err != nil {
		fmt.Printf("无法创建应用日志文件: %v\n", err)
		os.Exit(1)
	}

	// 安全操作日志
	secLogFile, err := os.OpenFile(
		filepath.Join(logDir, "security.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0644,
	)
	if err != nil {
		fmt.Printf("无法创建安全日志文件: %v\n", err)
		os.Exit(1)
	}

	logFlags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	if strings.ToUpper(logLevel) != "DEBUG" {
		logFlags = log.Ldate | log.Ltime
	}

	// 主日志器 - 输出到控制台和文件，各包的默认日志也写到这里
	multiWriter := io.MultiWriter(os.Stdout, appLogFile)
	log.SetOutput(multiWriter)
	logger = log.New(multiWriter, "[INFO] ", logFlags)
	secLogger = log.New(secLogFile, "[SEC] ", logFlags)

	logger.Printf("日志配置完成。日志文件保存在: %s", logDir)
}

func main() {
	httpHost := flag.String("httpHost", "0.0.0.0", "HTTP服务主机地址")
	httpPort := flag.Int("httpPort", 8000, "HTTP服务端口")
	debug := flag.Bool("debug", false, "是否启用调试模式")
	logLevel := flag.String("logLevel", "INFO", "日志级别 (DEBUG, INFO, WARNING, ERROR)")
	flag.Parse()

	setupLogging(*logLevel)
	logger.Println("正在启动小鱼商城验证服务...")

	commonSettings := settings.NewCommonSettings()
	if *debug {
		commonSettings.Debug = true
	}

	readWrite := datahandle.NewCommonReadWriteService(commonSettings)
	defer readWrite.Close()

	gateway, err := sendsms.NewGateway(
		commonSettings.SmsProvider,
		commonSettings.GetConfigPath(commonSettings.SmsCredentialsFile),
		settings.Seconds(commonSettings.SmsGatewayTimeout),
	)
	if err != nil {
		logger.Fatalf("初始化短信网关失败: %v", err)
	}
	logger.Printf("短信服务商: %s", commonSettings.SmsProvider)

	if commonSettings.ExposeSmsCode {
		secLogger.Printf("警告: expose_sms_code 已开启，短信验证码会出现在接口响应中")
	}

	metricsService := metrics.NewService()

	services := &mainhttp.Services{
		ImageCodes: imageverify.NewImageCodeService(
			readWrite,
			captcha.NewCaptchaService(captcha.DefaultOptions()),
			settings.Seconds(commonSettings.ImageCodeExpires),
		),
		SmsCodes: smsverify.NewSmsVerifyService(
			readWrite,
			metricsService.InstrumentGateway(gateway),
			smsverify.Options{
				SmsCodeExpires:          settings.Seconds(commonSettings.SmsCodeExpires),
				SendFlagExpires:         settings.Seconds(commonSettings.SendFlagExpires),
				TemplateID:              commonSettings.SmsTemplateID,
				GatewayTimeout:          settings.Seconds(commonSettings.SmsGatewayTimeout),
				DailySendLimit:          commonSettings.DailySendLimit,
				ArmLockOnGatewayFailure: commonSettings.ArmLockOnGatewayFailure,
				AtomicSendLock:          commonSettings.AtomicSendLock,
				Debug:                   commonSettings.Debug,
			},
		),
		Users:         users.NewUserService(readWrite),
		Metrics:       metricsService,
		ExposeSmsCode: commonSettings.ExposeSmsCode,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("正在启动HTTP服务，监听地址: %s:%d", *httpHost, *httpPort)
	if err := mainhttp.HandleConnection(ctx, *httpHost, *httpPort, services, commonSettings.Debug); err != nil {
		logger.Printf("HTTP服务异常退出: %v", err)
		os.Exit(1)
	}
	logger.Println("服务已停止")
}
