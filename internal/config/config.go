package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/combat-engine/internal/combatevent"
	"yqhp/combat-engine/internal/scheduler"
	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// Config represents the complete configuration for the combat engine.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	TimedHit   TimedHitConfig   `yaml:"timed_hit"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"CE_LOG_LEVEL"`
	Format      string `yaml:"format" env:"CE_LOG_FORMAT"`
	Output      string `yaml:"output" env:"CE_LOG_OUTPUT"`
	FilePath    string `yaml:"file_path" env:"CE_LOG_FILE_PATH"`
	MaxSize     int    `yaml:"max_size" env:"CE_LOG_MAX_SIZE"`
	MaxBackups  int    `yaml:"max_backups" env:"CE_LOG_MAX_BACKUPS"`
	MaxAge      int    `yaml:"max_age" env:"CE_LOG_MAX_AGE"`
	Development bool   `yaml:"development" env:"CE_LOG_DEVELOPMENT"`
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// MaxBranches 单次执行允许的最大跳转次数
	MaxBranches int `yaml:"max_branches" env:"CE_SCHEDULER_MAX_BRANCHES"`
}

// TimedHitConfig holds the judgment engine configuration.
type TimedHitConfig struct {
	Retention        time.Duration                      `yaml:"retention" env:"CE_TIMED_HIT_RETENTION"`
	Interactive      bool                               `yaml:"interactive" env:"CE_TIMED_HIT_INTERACTIVE"`
	InstantJudgment  string                             `yaml:"instant_judgment" env:"CE_TIMED_HIT_INSTANT_JUDGMENT"`
	DefaultTolerance types.TimedHitTolerance            `yaml:"default_tolerance"`
	Profiles         map[string]types.TimedHitTolerance `yaml:"profiles"`
	Basic            timedhit.BasicProfile              `yaml:"basic"`
	Chain            timedhit.ChainProfile              `yaml:"chain"`
}

// DispatcherConfig holds combat event dispatcher configuration.
type DispatcherConfig struct {
	PoolCapacity int `yaml:"pool_capacity" env:"CE_DISPATCHER_POOL_CAPACITY"`
	QueueSize    int `yaml:"queue_size" env:"CE_DISPATCHER_QUEUE_SIZE"`
	// Inline 为 true 时监听器在调用方 goroutine 上执行，不启动表现循环；
	// 此时多目标错峰命中按序同步投递，不再间隔
	Inline bool `yaml:"inline" env:"CE_DISPATCHER_INLINE"`
}

// CatalogConfig holds recipe catalog configuration.
type CatalogConfig struct {
	Path string `yaml:"path" env:"CE_CATALOG_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	th := timedhit.DefaultOptions()
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Scheduler: SchedulerConfig{
			MaxBranches: scheduler.DefaultMaxBranches,
		},
		TimedHit: TimedHitConfig{
			Retention:        th.Retention,
			Interactive:      th.Interactive,
			InstantJudgment:  string(th.InstantJudgment),
			DefaultTolerance: th.Default,
			Profiles:         make(map[string]types.TimedHitTolerance),
			Basic:            th.Basic,
			Chain:            th.Chain,
		},
		Dispatcher: DispatcherConfig{
			PoolCapacity: combatevent.DefaultPoolCapacity,
			QueueSize:    combatevent.DefaultQueueSize,
		},
	}
}

// LoggerConfig converts the logging section for pkg/logger.
func (c LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:       c.Level,
		Format:      c.Format,
		Output:      c.Output,
		FilePath:    c.FilePath,
		MaxSize:     c.MaxSize,
		MaxBackups:  c.MaxBackups,
		MaxAge:      c.MaxAge,
		Development: c.Development,
	}
}

// Options converts the timed-hit section for the judgment engine.
func (c TimedHitConfig) Options() timedhit.Options {
	profiles := make(map[string]types.TimedHitTolerance, len(c.Profiles))
	for k, v := range c.Profiles {
		profiles[k] = v
	}
	return timedhit.Options{
		Retention:       c.Retention,
		Interactive:     c.Interactive,
		InstantJudgment: types.ParseJudgment(c.InstantJudgment),
		Default:         c.DefaultTolerance,
		Profiles:        profiles,
		Basic:           c.Basic,
		Chain:           c.Chain,
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "CE_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables. The prefix
// replaces the leading "CE_" of every env tag.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 文件不存在时使用默认值
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		if l.envPrefix != "CE_" {
			envTag = l.envPrefix + strings.TrimPrefix(envTag, "CE_")
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := SetValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// SetValue sets a configuration value by dot-notation path, for example
// "timed_hit.basic.window_ms". Path segments match yaml tags or field names.
// A segment addressing a string-keyed map of structs selects (or creates)
// the entry, so "timed_hit.profiles.parry.perfect_ms" is valid.
func SetValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	return setPath(reflect.ValueOf(cfg).Elem(), parts, path, value)
}

func setPath(v reflect.Value, parts []string, path, value string) error {
	part := parts[0]
	if v.Kind() == reflect.Map {
		if v.Type().Key().Kind() != reflect.String || v.Type().Elem().Kind() != reflect.Struct || len(parts) < 2 {
			return fmt.Errorf("不支持的 map 路径: %s", path)
		}
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		key := reflect.ValueOf(part)
		elem := reflect.New(v.Type().Elem()).Elem()
		if cur := v.MapIndex(key); cur.IsValid() {
			elem.Set(cur)
		}
		if err := setPath(elem, parts[1:], path, value); err != nil {
			return err
		}
		v.SetMapIndex(key, elem)
		return nil
	}

	if v.Kind() != reflect.Struct {
		return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, v.Kind())
	}
	field, ok := lookupField(v, part)
	if !ok {
		return fmt.Errorf("未知的配置路径: %s", path)
	}
	if len(parts) == 1 {
		return setFieldValue(field, value)
	}
	return setPath(field, parts[1:], path, value)
}

// lookupField 先按 yaml 标签匹配，再按字段名（忽略大小写和下划线）匹配
func lookupField(v reflect.Value, part string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if name == part {
			return v.Field(i), true
		}
	}
	plain := strings.ReplaceAll(part, "_", "")
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() && strings.EqualFold(t.Field(i).Name, plain) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("无效的无符号整数: %w", err)
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}
