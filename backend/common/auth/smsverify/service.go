package smsverify

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"xiaoyumall/backend/common/auth/imageverify"
	"xiaoyumall/backend/common/sendsms"
	"xiaoyumall/backend/common/utils/datahandle"

	"github.com/go-redis/redis/v8"
	"golang.org/x/net/context"
)

// 创建logger
var logger = log.New(log.Writer(), "[SmsVerify] ", log.LstdFlags)

// Outcome 短信验证码请求的业务结果
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeMissingParams
	OutcomeThrottled
	OutcomeImageCodeExpired
	OutcomeImageCodeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeMissingParams:
		return "MISSING_PARAMS"
	case OutcomeThrottled:
		return "THROTTLED"
	case OutcomeImageCodeExpired:
		return "IMAGE_CODE_EXPIRED"
	case OutcomeImageCodeMismatch:
		return "IMAGE_CODE_MISMATCH"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result 签发结果，SmsCode只在OutcomeOK时有值
type Result struct {
	Outcome   Outcome
	SmsCode   string
	Delivered bool
}

// ReadWriteService 短信验证码用到的存储操作
type ReadWriteService interface {
	GetRedis(ctx context.Context, key string) *datahandle.OperationResult
	TakeRedis(ctx context.Context, key string) *datahandle.OperationResult
	SetRedis(ctx context.Context, key string, value string, expire time.Duration) *datahandle.OperationResult
	SetRedisNX(ctx context.Context, key string, value string, expire time.Duration) *datahandle.OperationResult
	DeleteRedis(ctx context.Context, keys ...string) *datahandle.OperationResult
	PipelineRedis(ctx context.Context, fn func(pipe redis.Pipeliner) error) *datahandle.OperationResult
}

// Options 有效期、模板和发送策略
type Options struct {
	SmsCodeExpires          time.Duration
	SendFlagExpires         time.Duration
	TemplateID              string
	GatewayTimeout          time.Duration
	DailySendLimit          int
	ArmLockOnGatewayFailure bool
	AtomicSendLock          bool
	Debug                   bool
}

// DefaultOptions 默认：验证码5分钟有效，60秒内同一手机号只发一次
func DefaultOptions() Options {
	return Options{
		SmsCodeExpires:          300 * time.Second,
		SendFlagExpires:         60 * time.Second,
		TemplateID:              "1",
		GatewayTimeout:          5 * time.Second,
		ArmLockOnGatewayFailure: true,
	}
}

// SmsCodeKey 短信验证码的键
func SmsCodeKey(mobile string) string {
	return "sms_" + mobile
}

// SendFlagKey 发送频率锁的键
func SendFlagKey(mobile string) string {
	return "send_flag_" + mobile
}

// DailyCountKey 当日发送计数的键
func DailyCountKey(mobile string, day time.Time) string {
	return fmt.Sprintf("sms_daily_%s_%s", mobile, day.Format("20060102"))
}

// SmsVerifyService 短信验证码服务，负责验证码的生成、存储、发送和验证
type SmsVerifyService struct {
	readWrite ReadWriteService
	gateway   sendsms.Gateway
	options   Options
	now       func() time.Time
}

// NewSmsVerifyService 创建新的SmsVerifyService实例
func NewSmsVerifyService(readWrite ReadWriteService, gateway sendsms.Gateway, options Options) *SmsVerifyService {
	return &SmsVerifyService{
		readWrite: readWrite,
		gateway:   gateway,
		options:   options,
		now:       time.Now,
	}
}

// IssueSmsCode 校验图形验证码后生成并发送短信验证码
// 业务上的失败通过Result.Outcome返回，error只表示存储层故障
func (s *SmsVerifyService) IssueSmsCode(ctx context.Context, mobile string, imageCode string, token string) (Result, error) {
	if mobile == "" || imageCode == "" || token == "" {
		return Result{Outcome: OutcomeMissingParams}, nil
	}

	// 发送间隔限制，在读取图形验证码之前检查，避免反复请求消耗有效的图形验证码
	flag := s.readWrite.GetRedis(ctx, SendFlagKey(mobile))
	if err := flag.Err(); err != nil {
		return Result{}, err
	}
	if flag.IsSuccess() {
		return Result{Outcome: OutcomeThrottled}, nil
	}

	if s.options.DailySendLimit > 0 {
		exceeded, err := s.dailyLimitExceeded(ctx, mobile)
		if err != nil {
			return Result{}, err
		}
		if exceeded {
			logger.Printf("手机号 %s 今日发送次数已达上限(%d次)", mobile, s.options.DailySendLimit)
			return Result{Outcome: OutcomeThrottled}, nil
		}
	}

	// 读取即删除，无论比对结果如何同一个图形验证码只能校验一次
	stored := s.readWrite.TakeRedis(ctx, imageverify.ImageCodeKey(token))
	if err := stored.Err(); err != nil {
		return Result{}, err
	}
	if stored.IsNotFound() {
		return Result{Outcome: OutcomeImageCodeExpired}, nil
	}
	if !strings.EqualFold(stored.String(), imageCode) {
		return Result{Outcome: OutcomeImageCodeMismatch}, nil
	}

	if s.options.AtomicSendLock {
		claim := s.readWrite.SetRedisNX(ctx, SendFlagKey(mobile), "1", s.options.SendFlagExpires)
		if err := claim.Err(); err != nil {
			return Result{}, err
		}
		if claimed, _ := claim.Data.(bool); !claimed {
			return Result{Outcome: OutcomeThrottled}, nil
		}
	}

	smsCode, err := generateSmsCode()
	if err != nil {
		if s.options.AtomicSendLock {
			s.releaseSendFlag(ctx, mobile)
		}
		return Result{}, fmt.Errorf("生成短信验证码失败: %w", err)
	}
	if s.options.Debug {
		logger.Printf("手机号 %s 的短信验证码: %s", mobile, smsCode)
	}

	saved := s.readWrite.SetRedis(ctx, SmsCodeKey(mobile), smsCode, s.options.SmsCodeExpires)
	if !saved.IsSuccess() {
		logger.Printf("存储短信验证码失败: %v", saved.Error)
		if s.options.AtomicSendLock {
			s.releaseSendFlag(ctx, mobile)
		}
		return Result{}, fmt.Errorf("%w: %v", datahandle.ErrStoreUnavailable, saved.Error)
	}

	delivered := s.dispatch(ctx, mobile, smsCode)

	if delivered && s.options.DailySendLimit > 0 {
		s.incrementDailyCount(ctx, mobile)
	}

	if err := s.armSendFlag(ctx, mobile, delivered); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeOK, SmsCode: smsCode, Delivered: delivered}, nil
}

// VerifySmsCode 校验短信验证码，验证码无论是否匹配都会被删除
func (s *SmsVerifyService) VerifySmsCode(ctx context.Context, mobile string, smsCode string) (bool, error) {
	if mobile == "" || smsCode == "" {
		return false, nil
	}

	stored := s.readWrite.TakeRedis(ctx, SmsCodeKey(mobile))
	if err := stored.Err(); err != nil {
		return false, err
	}
	if stored.IsNotFound() {
		return false, nil
	}

	return stored.String() == smsCode, nil
}

// dispatch 调用短信网关，失败只记录日志，已保存的验证码不回滚
func (s *SmsVerifyService) dispatch(ctx context.Context, mobile string, smsCode string) bool {
	sendCtx := ctx
	if s.options.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.options.GatewayTimeout)
		defer cancel()
	}

	minutes := strconv.Itoa(int(s.options.SmsCodeExpires / time.Minute))
	if err := s.gateway.SendTemplate(sendCtx, mobile, s.options.TemplateID, []string{smsCode, minutes}); err != nil {
		logger.Printf("%v: mobile=%s: %v", sendsms.ErrGatewayFailure, mobile, err)
		return false
	}
	return true
}

// armSendFlag 设置发送间隔锁
func (s *SmsVerifyService) armSendFlag(ctx context.Context, mobile string, delivered bool) error {
	key := SendFlagKey(mobile)

	if !delivered && !s.options.ArmLockOnGatewayFailure {
		if s.options.AtomicSendLock {
			return s.readWrite.DeleteRedis(ctx, key).Err()
		}
		return nil
	}

	// 原子模式下锁已在生成验证码前占用
	if s.options.AtomicSendLock {
		return nil
	}

	result := s.readWrite.SetRedis(ctx, key, "1", s.options.SendFlagExpires)
	if !result.IsSuccess() {
		logger.Printf("设置发送间隔锁失败: %v", result.Error)
		return fmt.Errorf("%w: %v", datahandle.ErrStoreUnavailable, result.Error)
	}
	return nil
}

// releaseSendFlag 原子模式下没有发出短信时释放已占用的发送锁
func (s *SmsVerifyService) releaseSendFlag(ctx context.Context, mobile string) {
	if err := s.readWrite.DeleteRedis(ctx, SendFlagKey(mobile)).Err(); err != nil {
		logger.Printf("释放发送间隔锁失败: %v", err)
	}
}

func (s *SmsVerifyService) dailyLimitExceeded(ctx context.Context, mobile string) (bool, error) {
	result := s.readWrite.GetRedis(ctx, DailyCountKey(mobile, s.now()))
	if err := result.Err(); err != nil {
		return false, err
	}
	if result.IsNotFound() {
		return false, nil
	}

	count, err := strconv.Atoi(result.String())
	if err != nil {
		logger.Printf("解析发送次数失败: %v", err)
		return false, nil
	}
	return count >= s.options.DailySendLimit, nil
}

// incrementDailyCount 计数加一并在次日零点过期
func (s *SmsVerifyService) incrementDailyCount(ctx context.Context, mobile string) {
	now := s.now()
	key := DailyCountKey(mobile, now)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

	result := s.readWrite.PipelineRedis(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, tomorrow)
		return nil
	})
	if !result.IsSuccess() {
		logger.Printf("更新发送次数失败: %v", result.Error)
	}
}

// generateSmsCode 生成000000-999999之间的六位数字
func generateSmsCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return formatSmsCode(n.Int64()), nil
}

func formatSmsCode(n int64) string {
	return fmt.Sprintf("%06d", n)
}
