package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"xiaoyumall/backend/common/auth/imageverify"
	"xiaoyumall/backend/common/auth/smsverify"
	"xiaoyumall/backend/common/metrics"
	"xiaoyumall/backend/main/users"

	"github.com/google/uuid"
)

// 全局日志器
var logger *log.Logger

// 初始化日志器 - 同时输出到标准输出和http_requests.log文件
func init() {
	var logWriter io.Writer = log.Writer()

	var logDir string
	if envLogDir := os.Getenv("XIAOYUMALL_LOG_DIR"); envLogDir != "" {
		logDir = envLogDir
	} else if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "/root" {
		logDir = filepath.Join(homeDir, "xiaoyumall_logs")
	} else {
		logDir = "/var/log/xiaoyumall_logs"
	}

	if err := os.MkdirAll(logDir, 0755); err == nil {
		httpLogFile, err := os.OpenFile(
			filepath.Join(logDir, "http_requests.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY,
			0644,
		)
		if err == nil {
			logWriter = io.MultiWriter(log.Writer(), httpLogFile)
		}
	}

	logFlags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	logger = log.New(logWriter, "[HTTP] ", logFlags)
}

// 响应码，与商城前端约定
const (
	RetOK                = "0"
	RetImageCodeErr      = "4001"
	RetThrottlingErr     = "4002"
	RetNecessaryParamErr = "4003"
	RetUserErr           = "4004"
	RetMobileErr         = "4007"
	RetSmsCodeErr        = "4008"
	RetDbErr             = "5000"
)

// Services HTTP层依赖的业务服务，由main组装后注入
type Services struct {
	ImageCodes *imageverify.ImageCodeService
	SmsCodes   *smsverify.SmsVerifyService
	Users      *users.UserService
	Metrics    *metrics.Service

	// ExposeSmsCode 开发环境在响应中返回短信验证码
	ExposeSmsCode bool
}

// 请求ID在context中的键
type contextKey string

const requestIDKey contextKey = "request_id"

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "-"
}

// 速率限制相关
type rateLimitInfo struct {
	requests  int
	lastReset time.Time
}

type rateLimiter struct {
	mu     sync.Mutex
	limits map[string]rateLimitInfo
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{limits: make(map[string]rateLimitInfo)}
}

// 速率限制中间件，同一IP在per秒内最多limit次请求
func (l *rateLimiter) rateLimit(next http.Handler, limit int, per int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		key := r.URL.Path + "|" + ip
		if route := currentRouteTemplate(r); route != "" {
			key = route + "|" + ip
		}

		l.mu.Lock()
		now := time.Now()
		info, exists := l.limits[key]
		if !exists || now.Sub(info.lastReset).Seconds() > float64(per) {
			info = rateLimitInfo{
				requests:  0,
				lastReset: now,
			}
		}
		info.requests++
		l.limits[key] = info
		l.mu.Unlock()

		if info.requests > limit {
			logger.Printf("[%s] 请求限制: IP %s 在 %d秒内发送了 %d 个请求，超过限制 %d", requestID(r), ip, per, info.requests, limit)
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"code":   RetThrottlingErr,
				"errmsg": "请求过于频繁",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP 获取真实IP，只有来自本机或内网反向代理的请求才信任代理头
func clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !trustedProxy(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}
	return peer
}

func trustedProxy(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// loggingMiddleware 记录所有HTTP请求的中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		next.ServeHTTP(rec, r)

		logger.Printf("[%s] %s %s 来自 %s -> %d (%s)", id, r.Method, r.URL.Path, clientIP(r), rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// respond 返回 {code, errmsg} 格式的响应
func respond(w http.ResponseWriter, code string, errmsg string, extra map[string]interface{}) {
	body := map[string]interface{}{
		"code":   code,
		"errmsg": errmsg,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// respondWithError 基础设施故障统一返回500
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	logger.Printf("[%s] 处理请求失败: %v", requestID(r), err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"code":   RetDbErr,
		"errmsg": "服务暂时不可用",
	})
}

// 主页处理函数
func handleRoot(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "小鱼商城验证服务")
}

// NewHandler 创建带路由、CORS和日志中间件的处理器
func NewHandler(services *Services) http.Handler {
	return loggingMiddleware(setupRoutes(services))
}

// HandleConnection 启动HTTP服务，ctx取消后优雅关闭
func HandleConnection(ctx context.Context, host string, port int, services *Services, debug bool) error {
	addr := fmt.Sprintf("%s:%d", host, port)

	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Printf("HTTP服务器启动于 %s", addr)
	if debug {
		logger.Printf("调试模式已启用")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP服务器启动失败: %w", err)
	case <-ctx.Done():
		logger.Printf("正在关闭HTTP服务器")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
