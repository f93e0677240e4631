package users

import (
	"errors"
	"fmt"
	"log"
	"regexp"

	"xiaoyumall/backend/common/utils/datahandle"

	"golang.org/x/net/context"
)

// 创建logger
var logger = log.New(log.Writer(), "[Users] ", log.LstdFlags)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{5,20}$`)
	mobilePattern   = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

// ErrInvalidParam 用户名或手机号格式不正确
var ErrInvalidParam = errors.New("参数格式不正确")

// ReadWriteService 注册校验用到的数据库操作
type ReadWriteService interface {
	QueryCount(ctx context.Context, query string, params ...interface{}) *datahandle.OperationResult
}

// UserService 注册前的用户名、手机号重复检查
type UserService struct {
	readWrite ReadWriteService
}

// NewUserService 创建新的UserService实例
func NewUserService(readWrite ReadWriteService) *UserService {
	return &UserService{readWrite: readWrite}
}

// ValidUsername 用户名为5-20位字母、数字、下划线或短横线
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidMobile 中国大陆11位手机号
func ValidMobile(mobile string) bool {
	return mobilePattern.MatchString(mobile)
}

// CountUsername 返回使用该用户名的账号数量
func (s *UserService) CountUsername(ctx context.Context, username string) (int64, error) {
	if !ValidUsername(username) {
		return 0, ErrInvalidParam
	}
	return s.count(ctx, "SELECT COUNT(*) FROM tb_users WHERE username = ?", username)
}

// CountMobile 返回绑定该手机号的账号数量
func (s *UserService) CountMobile(ctx context.Context, mobile string) (int64, error) {
	if !ValidMobile(mobile) {
		return 0, ErrInvalidParam
	}
	return s.count(ctx, "SELECT COUNT(*) FROM tb_users WHERE mobile = ?", mobile)
}

func (s *UserService) count(ctx context.Context, query string, param string) (int64, error) {
	result := s.readWrite.QueryCount(ctx, query, param)
	if !result.IsSuccess() {
		logger.Printf("查询用户数量失败: %v", result.Error)
		if result.IsNotFound() {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", datahandle.ErrStoreUnavailable, result.Error)
	}

	count, _ := result.Data.(int64)
	return count, nil
}
