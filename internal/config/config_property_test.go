package config

import (
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/types"
)

// TestConfigRoundTripProperty 序列化后再解析得到等价配置
func TestConfigRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("config round-trip preserves data", prop.ForAll(
		func(cfg *Config) bool {
			yamlBytes, err := cfg.Serialize()
			if err != nil {
				return false
			}
			parsed, err := ParseConfig(yamlBytes)
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(cfg, parsed)
		},
		genConfig(),
	))

	properties.TestingRun(t)
}

// TestGeneratedConfigsValidate 生成器只产生合法配置，校验器必须全部接受
func TestGeneratedConfigsValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("valid configs pass validation", prop.ForAll(
		func(cfg *Config) bool {
			return cfg.Validate() == nil
		},
		genConfig(),
	))

	properties.TestingRun(t)
}

// TestCmdOverrideProperty 点路径覆盖写入的值可以原样读回
func TestCmdOverrideProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("max_branches override sticks", prop.ForAll(
		func(n int) bool {
			cfg, err := NewLoader().WithCmdArgs(map[string]string{
				"scheduler.max_branches": strconv.Itoa(n),
			}).Load()
			return err == nil && cfg.Scheduler.MaxBranches == n
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// Generators for property-based testing

func genConfig() gopter.Gen {
	return gopter.CombineGens(
		genLoggingConfig(),
		gen.IntRange(0, 64),
		genTimedHitConfig(),
		genDispatcherConfig(),
	).Map(func(values []interface{}) *Config {
		return &Config{
			Logging:    values[0].(LoggingConfig),
			Scheduler:  SchedulerConfig{MaxBranches: values[1].(int)},
			TimedHit:   values[2].(TimedHitConfig),
			Dispatcher: values[3].(DispatcherConfig),
			Catalog:    CatalogConfig{Path: "recipes.yaml"},
		}
	})
}

func genLoggingConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("debug", "info", "warn", "error"),
		gen.OneConstOf("json", "console"),
		gen.OneConstOf("stdout", "stderr"),
		gen.IntRange(1, 500),
	).Map(func(values []interface{}) LoggingConfig {
		return LoggingConfig{
			Level:      values[0].(string),
			Format:     values[1].(string),
			Output:     values[2].(string),
			MaxSize:    values[3].(int),
			MaxBackups: 3,
			MaxAge:     7,
		}
	})
}

func genTolerance() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 200),
		gen.Float64Range(0, 150),
		gen.Float64Range(0, 150),
	).Map(func(values []interface{}) types.TimedHitTolerance {
		perfect := values[0].(float64)
		return types.TimedHitTolerance{
			PerfectMs: perfect,
			GoodMs:    perfect + values[1].(float64),
			EarlyMs:   values[2].(float64),
			LateMs:    values[3].(float64),
		}
	})
}

func genTimedHitConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(100, 10000),
		gen.Bool(),
		gen.OneConstOf("perfect", "good"),
		genTolerance(),
		genTolerance(),
		gen.Float64Range(100, 2000),
		gen.Float64Range(0, 1),
		gen.Float64Range(100, 1000),
		gen.IntRange(1, 6),
	).Map(func(values []interface{}) TimedHitConfig {
		window := values[5].(float64)
		basic := timedhit.DefaultBasicProfile()
		basic.WindowMs = window
		basic.TargetMs = window * values[6].(float64)

		chain := timedhit.DefaultChainProfile()
		chain.PhaseDurationMs = values[7].(float64)
		chain.Tiers = []timedhit.ChainTier{{Hits: values[8].(int), Multiplier: 1.1, RefundMax: 1}}

		return TimedHitConfig{
			Retention:        time.Duration(values[0].(int)) * time.Millisecond,
			Interactive:      values[1].(bool),
			InstantJudgment:  values[2].(string),
			DefaultTolerance: values[3].(types.TimedHitTolerance),
			Profiles:         map[string]types.TimedHitTolerance{"parry": values[4].(types.TimedHitTolerance)},
			Basic:            basic,
			Chain:            chain,
		}
	})
}

func genDispatcherConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 256),
		gen.IntRange(0, 1024),
		gen.Bool(),
	).Map(func(values []interface{}) DispatcherConfig {
		return DispatcherConfig{
			PoolCapacity: values[0].(int),
			QueueSize:    values[1].(int),
			Inline:       values[2].(bool),
		}
	})
}
