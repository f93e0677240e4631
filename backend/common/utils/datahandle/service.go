package datahandle

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"xiaoyumall/backend/common/configs/settings"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/net/context"
)

// OperationStatus 定义操作状态
type OperationStatus int

const (
	StatusSuccess OperationStatus = iota + 1
	StatusFailure
	StatusTimeout
	StatusConnectionError
	StatusNotFound
)

func (s OperationStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimeout:
		return "timeout"
	case StatusConnectionError:
		return "connection_error"
	case StatusNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrStoreUnavailable 存储层故障（连接失败、超时等）
var ErrStoreUnavailable = errors.New("存储服务不可用")

// OperationResult 操作结果封装类
type OperationResult struct {
	Status OperationStatus
	Data   interface{}
	Error  error
}

// IsSuccess 返回操作是否成功
func (r *OperationResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// IsNotFound 返回键或记录是否不存在
func (r *OperationResult) IsNotFound() bool {
	return r.Status == StatusNotFound
}

// IsUnavailable 返回是否为存储层故障（既不是成功也不是不存在）
func (r *OperationResult) IsUnavailable() bool {
	return r.Status != StatusSuccess && r.Status != StatusNotFound
}

// Err 将存储层故障转换为包装了ErrStoreUnavailable的错误，成功或不存在时返回nil
func (r *OperationResult) Err() error {
	if !r.IsUnavailable() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, r.Error)
}

// String 返回Data中的字符串值
func (r *OperationResult) String() string {
	if v, ok := r.Data.(string); ok {
		return v
	}
	return ""
}

// CommonReadWriteService 数据库和Redis读写封装类
type CommonReadWriteService struct {
	redisOptions *redis.Options
	mysqlDSN     string
	db           *sql.DB
	redisClient  *redis.Client
	mutex        sync.Mutex
}

// NewCommonReadWriteService 根据应用配置创建一个新的CommonReadWriteService实例
// 连接延迟到第一次使用时建立
func NewCommonReadWriteService(commonSettings *settings.CommonSettings) *CommonReadWriteService {
	return &CommonReadWriteService{
		redisOptions: &redis.Options{
			Addr:         commonSettings.RedisAddr(),
			Password:     commonSettings.RedisPassword,
			DB:           commonSettings.RedisDb,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
		mysqlDSN: commonSettings.MysqlDSN(),
	}
}

// NewCommonReadWriteServiceWithClients 使用已有的连接创建实例，db可以为nil
func NewCommonReadWriteServiceWithClients(redisClient *redis.Client, db *sql.DB) *CommonReadWriteService {
	return &CommonReadWriteService{
		redisClient: redisClient,
		db:          db,
	}
}

// getDbConnection 获取数据库连接
func (s *CommonReadWriteService) getDbConnection(ctx context.Context) (*sql.DB, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.db == nil {
		if s.mysqlDSN == "" {
			return nil, errors.New("未配置数据库连接")
		}

		db, err := sql.Open("mysql", s.mysqlDSN)
		if err != nil {
			return nil, err
		}

		// 设置连接池参数
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}

		s.db = db
	}

	return s.db, nil
}

// getRedisConnection 获取Redis连接，首次使用时建立
func (s *CommonReadWriteService) getRedisConnection(ctx context.Context) (*redis.Client, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.redisClient == nil {
		if s.redisOptions == nil {
			return nil, errors.New("未配置Redis连接")
		}

		client := redis.NewClient(s.redisOptions)

		if _, err := client.Ping(ctx).Result(); err != nil {
			client.Close()
			return nil, err
		}

		s.redisClient = client
	}

	return s.redisClient, nil
}

// handleError 错误处理
func (s *CommonReadWriteService) handleError(err error) *OperationResult {
	if err == nil {
		return &OperationResult{Status: StatusSuccess}
	}

	if errors.Is(err, redis.Nil) || errors.Is(err, sql.ErrNoRows) {
		return &OperationResult{Status: StatusNotFound, Error: err}
	}

	log.Printf("操作错误: %v", err)

	if errors.Is(err, context.DeadlineExceeded) {
		return &OperationResult{Status: StatusTimeout, Error: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &OperationResult{Status: StatusTimeout, Error: err}
	}

	// 判断是否为连接错误
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return &OperationResult{Status: StatusConnectionError, Error: err}
	}

	return &OperationResult{Status: StatusFailure, Error: err}
}

// QueryCount 执行 SELECT COUNT(*) 类查询，返回 int64
func (s *CommonReadWriteService) QueryCount(ctx context.Context, query string, params ...interface{}) *OperationResult {
	db, err := s.getDbConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	var count int64
	if err := db.QueryRowContext(ctx, query, params...).Scan(&count); err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess, Data: count}
}

// GetRedis 从Redis获取值
func (s *CommonReadWriteService) GetRedis(ctx context.Context, key string) *OperationResult {
	client, err := s.getRedisConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	val, err := client.Get(ctx, key).Result()
	if err == redis.Nil {
		return &OperationResult{Status: StatusNotFound, Error: fmt.Errorf("键不存在: %s", key)}
	} else if err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess, Data: val}
}

// TakeRedis 读取并删除Redis键（GETDEL），用于一次性凭据
func (s *CommonReadWriteService) TakeRedis(ctx context.Context, key string) *OperationResult {
	client, err := s.getRedisConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	val, err := client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return &OperationResult{Status: StatusNotFound, Error: fmt.Errorf("键不存在: %s", key)}
	} else if err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess, Data: val}
}

// SetRedis 设置Redis键值，expire为0表示不过期
func (s *CommonReadWriteService) SetRedis(ctx context.Context, key string, value string, expire time.Duration) *OperationResult {
	client, err := s.getRedisConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	if err := client.Set(ctx, key, value, expire).Err(); err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess}
}

// SetRedisNX 仅当键不存在时设置，Data为是否设置成功（bool）
func (s *CommonReadWriteService) SetRedisNX(ctx context.Context, key string, value string, expire time.Duration) *OperationResult {
	client, err := s.getRedisConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	ok, err := client.SetNX(ctx, key, value, expire).Result()
	if err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess, Data: ok}
}

// DeleteRedis 删除Redis键，Data为删除的键数量
func (s *CommonReadWriteService) DeleteRedis(ctx context.Context, keys ...string) *OperationResult {
	client, err := s.getRedisConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	count, err := client.Del(ctx, keys...).Result()
	if err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess, Data: count}
}

// PipelineRedis 在一个管道中批量执行命令，fn中排队的命令一次性发送
func (s *CommonReadWriteService) PipelineRedis(ctx context.Context, fn func(pipe redis.Pipeliner) error) *OperationResult {
	client, err := s.getRedisConnection(ctx)
	if err != nil {
		return s.handleError(err)
	}

	cmds, err := client.Pipelined(ctx, fn)
	if err != nil {
		return s.handleError(err)
	}

	return &OperationResult{Status: StatusSuccess, Data: cmds}
}

// Close 关闭数据库和Redis连接
func (s *CommonReadWriteService) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	if s.redisClient != nil {
		s.redisClient.Close()
		s.redisClient = nil
	}
}
