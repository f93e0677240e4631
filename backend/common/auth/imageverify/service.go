package imageverify

import (
	"errors"
	"fmt"
	"log"
	"time"

	"xiaoyumall/backend/common/captcha"
	"xiaoyumall/backend/common/utils/datahandle"

	"golang.org/x/net/context"
)

// 创建logger
var logger = log.New(log.Writer(), "[ImageVerify] ", log.LstdFlags)

// ErrMissingToken 未提供图形验证码标识
var ErrMissingToken = errors.New("缺少图形验证码标识")

// ReadWriteService 图形验证码用到的存储操作
type ReadWriteService interface {
	SetRedis(ctx context.Context, key string, value string, expire time.Duration) *datahandle.OperationResult
}

// ImageCodeKey 图形验证码在Redis中的键
func ImageCodeKey(token string) string {
	return "img_" + token
}

// ImageCodeService 图形验证码签发服务
type ImageCodeService struct {
	readWrite ReadWriteService
	generator captcha.Generator
	expire    time.Duration
}

// NewImageCodeService 创建图形验证码服务，expire为验证码文本的有效期
func NewImageCodeService(readWrite ReadWriteService, generator captcha.Generator, expire time.Duration) *ImageCodeService {
	return &ImageCodeService{
		readWrite: readWrite,
		generator: generator,
		expire:    expire,
	}
}

// IssueImageCode 生成图形验证码，保存文本并返回JPEG图片
// 同一token重复签发时覆盖之前的文本
func (s *ImageCodeService) IssueImageCode(ctx context.Context, token string) ([]byte, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	text, image, err := s.generator.Generate()
	if err != nil {
		logger.Printf("生成图形验证码失败: %v", err)
		return nil, fmt.Errorf("生成图形验证码失败: %w", err)
	}

	result := s.readWrite.SetRedis(ctx, ImageCodeKey(token), text, s.expire)
	if !result.IsSuccess() {
		logger.Printf("保存图形验证码失败 token=%s: %v", token, result.Error)
		return nil, fmt.Errorf("%w: %v", datahandle.ErrStoreUnavailable, result.Error)
	}

	return image, nil
}
