package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewCommonSettingsFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	ini := `[Redis]
host = redis.internal
port = 6380
db = 3

[Verify]
sms_code_expires = 600
daily_send_limit = 10
arm_lock_on_gateway_failure = false

[ShortMessage]
provider = yuntongxun
`
	if err := os.WriteFile(filepath.Join(dir, "mallserviceconfig.ini"), []byte(ini), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("XIAOYUMALL_CONFIG_DIR", dir)
	t.Setenv("REDIS_PORT", "6390")
	t.Setenv("EXPOSE_SMS_CODE", "yes")

	s := NewCommonSettings()

	if s.RedisHost != "redis.internal" {
		t.Fatalf("RedisHost = %q", s.RedisHost)
	}
	if s.RedisPort != 6390 {
		t.Fatalf("RedisPort = %d, want env override 6390", s.RedisPort)
	}
	if s.RedisDb != 3 {
		t.Fatalf("RedisDb = %d", s.RedisDb)
	}
	if s.SmsCodeExpires != 600 || s.DailySendLimit != 10 {
		t.Fatalf("verify section not applied: %+v", s)
	}
	if s.ArmLockOnGatewayFailure {
		t.Fatal("ArmLockOnGatewayFailure should be false from file")
	}
	if !s.ExposeSmsCode {
		t.Fatal("ExposeSmsCode should be enabled by env")
	}
	if s.SmsProvider != "yuntongxun" {
		t.Fatalf("SmsProvider = %q", s.SmsProvider)
	}
	// 文件未设置的键保留默认值
	if s.ImageCodeExpires != 300 || s.SendFlagExpires != 60 || s.SmsTemplateID != "1" {
		t.Fatalf("defaults lost: %+v", s)
	}
	if got := s.RedisAddr(); got != "redis.internal:6390" {
		t.Fatalf("RedisAddr = %q", got)
	}
}

func TestDefaults(t *testing.T) {
	s := &CommonSettings{}
	s.setDefaultValues()

	if !s.ArmLockOnGatewayFailure {
		t.Fatal("lock must be armed on gateway failure by default")
	}
	if s.ExposeSmsCode {
		t.Fatal("sms code must not be exposed by default")
	}
	if s.AtomicSendLock {
		t.Fatal("atomic send lock is opt-in")
	}
	if got := s.MysqlDSN(); got != "root:root@tcp(localhost:3306)/xiaoyu_mall?charset=utf8mb4&parseTime=True" {
		t.Fatalf("MysqlDSN = %q", got)
	}
}

func TestSeconds(t *testing.T) {
	if Seconds(60) != time.Minute {
		t.Fatal("Seconds(60) != 1m")
	}
}

func TestParseInt(t *testing.T) {
	if v, err := parseInt("3306"); err != nil || v != 3306 {
		t.Fatalf("parseInt(3306) = %d, %v", v, err)
	}
	if _, err := parseInt("abc"); err == nil {
		t.Fatal("parseInt(abc) should fail")
	}
}
