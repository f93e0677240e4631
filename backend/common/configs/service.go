// Package configs 提供统一的路径配置管理服务
//
// 主要功能：
//   - 提供全局路径配置管理（单例模式）
//   - 支持多路径回退机制，自动查找有效路径
//   - 统一配置文件读取逻辑，避免重复代码
//
// 使用示例：
//
//	pc := configs.GetInstance()
//	credPath := pc.GetConfigPath("smsgateway.ini")
package configs

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// ConfigName 主配置文件名（不含扩展名）
const ConfigName = "mallserviceconfig"

// InitViperConfig 初始化Viper配置读取器
//
// 配置策略：
//   - 配置文件名：mallserviceconfig.ini
//   - 配置文件类型：INI格式
//   - 路径优先级：环境变量目录 -> 相对路径 -> Linux生产环境 -> Linux旧版路径 -> 简化路径
func InitViperConfig() error {
	viper.SetConfigName(ConfigName)
	viper.SetConfigType("ini")

	configPaths := []string{
		filepath.Join("backend", "common", "configs"),
		"/program/xiaoyumall/backend/common/configs",
		"/opt/xiaoyumall/backend/common/configs",
		"configs",
	}
	if dir := os.Getenv("XIAOYUMALL_CONFIG_DIR"); dir != "" {
		configPaths = append([]string{dir}, configPaths...)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return viper.ReadInConfig()
}

var (
	instance *PathConfig
	once     sync.Once
	logger   = log.New(log.Writer(), "pathconfig: ", log.LstdFlags)
)

// PathConfig 配置文件目录，ConfigPathLegacy 为旧版本部署的备用目录
type PathConfig struct {
	ConfigPath       string
	ConfigPathLegacy string
}

// GetInstance 获取PathConfig单例实例
func GetInstance() *PathConfig {
	once.Do(func() {
		instance = &PathConfig{}
		instance.loadConfig()
	})
	return instance
}

// loadConfig 从配置文件[Path]节加载路径配置，读取失败时使用默认路径
func (p *PathConfig) loadConfig() {
	if err := InitViperConfig(); err != nil {
		logger.Printf("警告: 无法读取配置文件: %v, 使用默认路径", err)
		p.setDefaultPaths()
		return
	}

	p.ConfigPath = viper.GetString("Path.configs_path")
	p.ConfigPathLegacy = viper.GetString("Path.configs_path_legacy")

	if p.ConfigPath == "" {
		p.setDefaultPaths()
	}

	logger.Printf("路径配置加载完成: ConfigPath=%s", p.ConfigPath)
}

// setDefaultPaths 设置默认路径配置
func (p *PathConfig) setDefaultPaths() {
	p.ConfigPath = "/program/xiaoyumall/backend/common/configs"
	p.ConfigPathLegacy = "/opt/xiaoyumall/backend/common/configs"
}

// GetConfigPath 获取配置文件路径，自动检查文件是否存在
//
// 路径查找优先级：
//  1. 绝对路径（直接返回）
//  2. 主配置路径 (ConfigPath + filename)
//  3. 备用配置路径 (ConfigPathLegacy + filename)
//  4. 相对路径 (backend/common/configs + filename)
//
// 如果都找不到则返回主路径，由调用者处理错误
func (p *PathConfig) GetConfigPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}

	mainPath := filepath.Join(p.ConfigPath, filename)
	if _, err := os.Stat(mainPath); err == nil {
		return mainPath
	}

	legacyPath := filepath.Join(p.ConfigPathLegacy, filename)
	if _, err := os.Stat(legacyPath); err == nil {
		logger.Printf("使用备用配置路径: %s", legacyPath)
		return legacyPath
	}

	relativePath := filepath.Join("backend", "common", "configs", filename)
	if _, err := os.Stat(relativePath); err == nil {
		logger.Printf("使用相对配置路径: %s", relativePath)
		return relativePath
	}

	logger.Printf("配置文件不存在，返回默认路径: %s", mainPath)
	return mainPath
}
