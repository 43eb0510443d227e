package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/locator"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
	"github.com/RecoveryAshes/cnkifetch/internal/utils"
)

// Config 应用程序配置
type Config struct {
	Site     SiteConfig            `mapstructure:"site"`
	Browser  BrowserConfig         `mapstructure:"browser"`
	Timeouts models.TimeoutConfig  `mapstructure:"timeouts"`
	Waits    models.WaitConfig     `mapstructure:"waits"`
	Download models.DownloadConfig `mapstructure:"download"`
	Defaults DefaultsConfig        `mapstructure:"defaults"`
	Logging  LoggingConfig         `mapstructure:"logging"`
	Resource ResourceConfig        `mapstructure:"resource"`
}

// SiteConfig 目标站点
type SiteConfig struct {
	HomeURL         string `mapstructure:"home_url"`
	StrategyVersion string `mapstructure:"strategy_version"`
	StrategyFile    string `mapstructure:"strategy_file"` // 非空时替换内置策略表
}

// BrowserConfig 浏览器与指纹
type BrowserConfig struct {
	Headless       bool              `mapstructure:"headless"`
	BinPath        string            `mapstructure:"bin_path"`
	SlowMotion     int               `mapstructure:"slow_motion"` // 毫秒
	UserAgent      string            `mapstructure:"user_agent"`
	Locale         string            `mapstructure:"locale"`
	Timezone       string            `mapstructure:"timezone"`
	ViewportWidth  int               `mapstructure:"viewport_width"`
	ViewportHeight int               `mapstructure:"viewport_height"`
	LaunchArgs     []string          `mapstructure:"launch_args"`
	ExtraHeaders   map[string]string `mapstructure:"extra_headers"`
}

// DefaultsConfig 命令行未指定时使用的值
type DefaultsConfig struct {
	Category string `mapstructure:"category"`
	Count    int    `mapstructure:"count"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// ResourceConfig 下载标签页的资源限制
type ResourceConfig struct {
	SafetyReserveMB  int `mapstructure:"safety_reserve_mb"`
	CPULoadThreshold int `mapstructure:"cpu_load_threshold"`
	MaxTabs          int `mapstructure:"max_tabs"`
	TabMemoryMB      int `mapstructure:"tab_memory_mb"`
}

// LoadConfig 加载配置文件
// 工作目录下的 .env 先写入环境变量,环境变量优先于配置文件
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &models.ConfigError{FilePath: ".env", Cause: err}
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cnkifetch"))
		}
	}

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 未指定且搜索不到配置文件时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
// 每个键都要有默认值,环境变量才能覆盖
func setDefaults(v *viper.Viper) {
	def := models.DefaultAcquireConfig()
	fp := browser.DefaultFingerprint()

	v.SetDefault("site.home_url", "https://kc.cnki.net/")
	v.SetDefault("site.strategy_version", locator.DefaultVersion)
	v.SetDefault("site.strategy_file", "")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.slow_motion", 0)
	v.SetDefault("browser.user_agent", fp.UserAgent)
	v.SetDefault("browser.locale", fp.Locale)
	v.SetDefault("browser.timezone", fp.Timezone)
	v.SetDefault("browser.viewport_width", fp.ViewportWidth)
	v.SetDefault("browser.viewport_height", fp.ViewportHeight)
	v.SetDefault("browser.launch_args", browser.DefaultLaunchArgs)
	v.SetDefault("browser.extra_headers", map[string]string{})

	v.SetDefault("timeouts.page_load", def.Timeouts.PageLoad)
	v.SetDefault("timeouts.network_idle", def.Timeouts.NetworkIdle)
	v.SetDefault("timeouts.selector", def.Timeouts.Selector)
	v.SetDefault("timeouts.selector_retry", def.Timeouts.SelectorRetry)
	v.SetDefault("timeouts.download_button", def.Timeouts.DownloadButton)
	v.SetDefault("timeouts.element_find", def.Timeouts.ElementFind)
	v.SetDefault("timeouts.download", def.Timeouts.Download)
	v.SetDefault("timeouts.result_wait", def.Timeouts.ResultWait)

	v.SetDefault("waits.page_switch", def.Waits.PageSwitch)
	v.SetDefault("waits.scroll", def.Waits.Scroll)
	v.SetDefault("waits.content_load", def.Waits.ContentLoad)
	v.SetDefault("waits.recheck", def.Waits.Recheck)
	v.SetDefault("waits.batch_cooldown", def.Waits.BatchCooldown)
	v.SetDefault("waits.poll_interval", def.Waits.PollInterval)

	v.SetDefault("download.max_concurrent", def.Download.MaxConcurrent)
	v.SetDefault("download.retry_times", def.Download.RetryTimes)
	v.SetDefault("download.max_filename_length", def.Download.MaxFilenameLength)
	v.SetDefault("download.min_free_space_mb", def.Download.MinFreeSpaceMB)
	v.SetDefault("download.debug_screenshots", def.Download.DebugScreenshots)

	v.SetDefault("defaults.category", string(models.CategoryJournal))
	v.SetDefault("defaults.count", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	res := browser.DefaultResourceMonitorConfig()
	v.SetDefault("resource.safety_reserve_mb", res.SafetyReserveMemory/(1024*1024))
	v.SetDefault("resource.cpu_load_threshold", res.CPULoadThreshold)
	v.SetDefault("resource.max_tabs", res.MaxTabsLimit)
	v.SetDefault("resource.tab_memory_mb", res.TabMemoryUsage/(1024*1024))
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	acq := c.AcquireConfig()
	if err := acq.Validate(); err != nil {
		return err
	}
	if err := models.ValidateURL(c.Site.HomeURL); err != nil {
		return fmt.Errorf("site.home_url 无效: %w", err)
	}
	if _, err := models.ParseCategory(c.Defaults.Category); err != nil {
		return fmt.Errorf("defaults.category 无效: %w", err)
	}
	if c.Defaults.Count <= 0 {
		return fmt.Errorf("defaults.count 必须大于0,当前值: %d", c.Defaults.Count)
	}
	return nil
}

// AcquireConfig 引擎使用的超时、等待与下载配置
func (c *Config) AcquireConfig() models.AcquireConfig {
	return models.AcquireConfig{Timeouts: c.Timeouts, Waits: c.Waits, Download: c.Download}
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() browser.ResourceMonitorConfig {
	const mb = 1024 * 1024
	return browser.ResourceMonitorConfig{
		SafetyReserveMemory: int64(c.Resource.SafetyReserveMB) * mb,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		MaxTabsLimit:        c.Resource.MaxTabs,
		TabMemoryUsage:      int64(c.Resource.TabMemoryMB) * mb,
	}
}

// BaseFingerprint 配置中的指纹,不含额外请求头
func (c *Config) BaseFingerprint() browser.Fingerprint {
	fp := browser.DefaultFingerprint()
	if c.Browser.UserAgent != "" {
		fp.UserAgent = c.Browser.UserAgent
	}
	if c.Browser.Locale != "" {
		fp.Locale = c.Browser.Locale
	}
	if c.Browser.Timezone != "" {
		fp.Timezone = c.Browser.Timezone
	}
	if c.Browser.ViewportWidth > 0 && c.Browser.ViewportHeight > 0 {
		fp.ViewportWidth = c.Browser.ViewportWidth
		fp.ViewportHeight = c.Browser.ViewportHeight
	}
	return fp
}

// LaunchOptions 浏览器启动参数
func (c *Config) LaunchOptions(downloadDir string, fp browser.Fingerprint) browser.LaunchOptions {
	args := c.Browser.LaunchArgs
	if len(args) == 0 {
		args = browser.DefaultLaunchArgs
	}
	return browser.LaunchOptions{
		Headless:    c.Browser.Headless,
		BinPath:     c.Browser.BinPath,
		Args:        args,
		SlowMotion:  time.Duration(c.Browser.SlowMotion) * time.Millisecond,
		DownloadDir: downloadDir,
		Fingerprint: fp,
	}
}

// StrategyTable 加载定位策略表,strategy_file 优先于 strategy_version
func (c *Config) StrategyTable() (*locator.Table, error) {
	if c.Site.StrategyFile != "" {
		return locator.LoadFile(c.Site.StrategyFile)
	}
	return locator.Load(c.Site.StrategyVersion)
}

// CLIFlags 命令行参数,零值表示未指定
type CLIFlags struct {
	Concurrency     int
	RetryTimes      int // <0 表示未指定
	Headless        *bool
	StrategyVersion string
	StrategyFile    string
	LogLevel        string
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件和环境变量
func (c *Config) MergeCLIFlags(flags CLIFlags) {
	if flags.Concurrency > 0 {
		c.Download.MaxConcurrent = flags.Concurrency
	}
	if flags.RetryTimes >= 0 {
		c.Download.RetryTimes = flags.RetryTimes
	}
	if flags.Headless != nil {
		c.Browser.Headless = *flags.Headless
	}
	if flags.StrategyVersion != "" {
		c.Site.StrategyVersion = flags.StrategyVersion
	}
	if flags.StrategyFile != "" {
		c.Site.StrategyFile = flags.StrategyFile
	}
	if flags.LogLevel != "" {
		c.Logging.Level = flags.LogLevel
	}
}
