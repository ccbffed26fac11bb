package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/combat-engine/internal/combatevent"
	"yqhp/combat-engine/internal/scheduler"
	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, scheduler.DefaultMaxBranches, cfg.Scheduler.MaxBranches)
	assert.Equal(t, timedhit.DefaultRetention, cfg.TimedHit.Retention)
	assert.True(t, cfg.TimedHit.Interactive)
	assert.Equal(t, "good", cfg.TimedHit.InstantJudgment)
	assert.Equal(t, types.DefaultTolerance, cfg.TimedHit.DefaultTolerance)
	assert.Equal(t, combatevent.DefaultPoolCapacity, cfg.Dispatcher.PoolCapacity)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: debug
  format: json

scheduler:
  max_branches: 4

timed_hit:
  retention: 3s
  interactive: false
  instant_judgment: perfect
  default_tolerance:
    perfect_ms: 40
    good_ms: 100
    early_ms: 80
    late_ms: 80
  profiles:
    parry:
      perfect_ms: 30
      good_ms: 70
      early_ms: 50
      late_ms: 50
  basic:
    window_ms: 900
    target_ms: 450
  chain:
    phase_duration_ms: 500
    tiers:
      - hits: 2
        multiplier: 1.0
        refund_max: 1

dispatcher:
  pool_capacity: 32
  inline: true

catalog:
  path: recipes.yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Scheduler.MaxBranches)
	assert.Equal(t, 3*time.Second, cfg.TimedHit.Retention)
	assert.False(t, cfg.TimedHit.Interactive)
	assert.Equal(t, 40.0, cfg.TimedHit.DefaultTolerance.PerfectMs)
	require.Contains(t, cfg.TimedHit.Profiles, "parry")
	assert.Equal(t, 70.0, cfg.TimedHit.Profiles["parry"].GoodMs)
	assert.Equal(t, 900.0, cfg.TimedHit.Basic.WindowMs)
	// 未出现的字段保留默认值
	assert.Equal(t, 1.5, cfg.TimedHit.Basic.PerfectMultiplier)
	assert.Equal(t, 500.0, cfg.TimedHit.Chain.PhaseDurationMs)
	assert.Len(t, cfg.TimedHit.Chain.Tiers, 1)
	assert.Equal(t, 32, cfg.Dispatcher.PoolCapacity)
	assert.True(t, cfg.Dispatcher.Inline)
	assert.Equal(t, "recipes.yaml", cfg.Catalog.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler: [1, 2"), 0644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CE_LOG_LEVEL", "warn")
	t.Setenv("CE_SCHEDULER_MAX_BRANCHES", "2")
	t.Setenv("CE_TIMED_HIT_RETENTION", "5s")
	t.Setenv("CE_TIMED_HIT_INTERACTIVE", "false")
	t.Setenv("CE_DISPATCHER_INLINE", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Scheduler.MaxBranches)
	assert.Equal(t, 5*time.Second, cfg.TimedHit.Retention)
	assert.False(t, cfg.TimedHit.Interactive)
	assert.True(t, cfg.Dispatcher.Inline)
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("GAME_SCHEDULER_MAX_BRANCHES", "7")
	cfg, err := NewLoader().WithEnvPrefix("GAME_").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scheduler.MaxBranches)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("CE_SCHEDULER_MAX_BRANCHES", "many")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestCmdOverrides(t *testing.T) {
	t.Setenv("CE_SCHEDULER_MAX_BRANCHES", "2")
	cfg, err := NewLoader().WithCmdArgs(map[string]string{
		"scheduler.max_branches":              "9",
		"timed_hit.basic.window_ms":           "1000",
		"timed_hit.chain.grace_ms":            "150",
		"timed_hit.default_tolerance.late_ms": "60",
		"timed_hit.profiles.parry.good_ms":    "80",
		"dispatcher.queue_size":               "16",
		"logging.development":                 "true",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Scheduler.MaxBranches)
	assert.Equal(t, 1000.0, cfg.TimedHit.Basic.WindowMs)
	assert.Equal(t, 150.0, cfg.TimedHit.Chain.GraceMs)
	assert.Equal(t, 60.0, cfg.TimedHit.DefaultTolerance.LateMs)
	assert.Equal(t, 80.0, cfg.TimedHit.Profiles["parry"].GoodMs)
	assert.Equal(t, 16, cfg.Dispatcher.QueueSize)
	assert.True(t, cfg.Logging.Development)
}

func TestCmdOverrideErrors(t *testing.T) {
	tests := []struct {
		path  string
		value string
	}{
		{"scheduler.unknown", "1"},
		{"scheduler.max_branches.deeper", "1"},
		{"timed_hit.retention", "soon"},
		{"timed_hit.profiles", "x"},
		{"timed_hit.chain.tiers", "1"},
		{"dispatcher.inline", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Error(t, SetValue(DefaultConfig(), tt.path, tt.value))
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimedHit.Profiles["heavy"] = types.TimedHitTolerance{PerfectMs: 60, GoodMs: 150}
	cfg.TimedHit.InstantJudgment = "perfect"

	opts := cfg.TimedHit.Options()
	assert.Equal(t, types.JudgmentPerfect, opts.InstantJudgment)
	assert.Equal(t, cfg.TimedHit.Basic, opts.Basic)
	assert.Equal(t, 150.0, opts.Profiles["heavy"].GoodMs)

	// 转换结果与配置互不影响
	opts.Profiles["heavy"] = types.TimedHitTolerance{}
	assert.Equal(t, 150.0, cfg.TimedHit.Profiles["heavy"].GoodMs)

	cfg.Logging.FilePath = "ce.log"
	lc := cfg.Logging.LoggerConfig()
	assert.Equal(t, "ce.log", lc.FilePath)
	assert.Equal(t, cfg.Logging.Level, lc.Level)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimedHit.Profiles["parry"] = types.TimedHitTolerance{PerfectMs: 30, GoodMs: 70, EarlyMs: 50, LateMs: 50}
	clone := cfg.Clone()
	assert.Equal(t, cfg, clone)

	clone.TimedHit.Chain.Tiers[0].Hits = 9
	assert.NotEqual(t, 9, cfg.TimedHit.Chain.Tiers[0].Hits)
}
