package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/combat-engine/internal/config"
	"yqhp/combat-engine/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是版本信息中显示的 ASCII 艺术
	Banner = `
   __    __
  /  \  /  \   Combat Engine %s
  \  /  \  /
   \/ /\ \/
     /  \
`
)

// globalOptions 全局 flags
type globalOptions struct {
	cfgFile   string
	overrides []string
	debug     bool
	quiet     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "combat-engine",
		Short: "回合制战斗动作执行核心",
		Long: `combat-engine 以无界面方式驱动动作执行核心：
按配方调度步骤、判定时机输入、把调度事件分发为战斗标志。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().StringArrayVar(&opts.overrides, "set", nil, "覆盖配置项，格式: section.key=value (可多次指定)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")

	rootCmd.AddCommand(
		newSimulateCmd(opts),
		newParseCmd(),
		newCatalogCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig 按 默认值 < 文件 < 环境变量 < --set 的顺序加载配置并初始化日志
func (o *globalOptions) loadConfig() (*config.Config, error) {
	args := make(map[string]string, len(o.overrides))
	for _, kv := range o.overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("无效的 --set 参数 %q，期望 key=value", kv)
		}
		args[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	cfg, err := config.NewLoader().WithConfigPath(o.cfgFile).WithCmdArgs(args).Load()
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	if o.quiet {
		cfg.Logging.Level = "error"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetLogger(logger.New(cfg.Logging.LoggerConfig()))
	return cfg, nil
}
