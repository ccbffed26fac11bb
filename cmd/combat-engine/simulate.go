package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/combat-engine/internal/combatevent"
	"yqhp/combat-engine/internal/config"
	"yqhp/combat-engine/internal/engine"
	"yqhp/combat-engine/internal/metrics"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
	"yqhp/combat-engine/pkg/utils"
)

// simulateOptions simulate 命令的 flags
type simulateOptions struct {
	recipes    string
	iterations int
	actor      string
	targets    int
	group      bool
	stagger    time.Duration
	charge     int
	profile    string
	pressEvery time.Duration
	jsonOutput bool
}

// runReport 单次执行的摘要
type runReport struct {
	Iteration int            `json:"iteration"`
	RunID     string         `json:"run_id"`
	RecipeID  string         `json:"recipe_id"`
	Groups    []string       `json:"groups"`
	Flags     []string       `json:"flags"`
	Cancelled bool           `json:"cancelled"`
	Aborted   bool           `json:"aborted"`
	Reason    string         `json:"reason,omitempty"`
	Branches  int            `json:"branches"`
	Steps     map[string]int `json:"steps"`
	Duration  string         `json:"duration"`
}

// simulateReport --json 输出
type simulateReport struct {
	Runs    []*runReport     `json:"runs"`
	Metrics *metrics.Summary `json:"metrics"`
}

func newSimulateCmd(global *globalOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate <recipe-id>",
		Short: "模拟执行配方",
		Long: `以无界面方式执行目录中的配方，打印每次执行分发的战斗标志与汇总指标。

示例:
  combat-engine simulate slash --recipes configs/recipes.yaml
  combat-engine simulate slash --recipes configs/recipes.yaml --targets 3 --group --stagger 50ms
  combat-engine simulate parry --recipes configs/recipes.yaml --press-every 20ms --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			if opts.recipes != "" {
				cfg.Catalog.Path = opts.recipes
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulate(ctx, cmd.OutOrStdout(), cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.recipes, "recipes", "r", "", "配方目录文件 (YAML)")
	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 1, "执行次数")
	cmd.Flags().StringVar(&opts.actor, "actor", "hero", "施放者 ID")
	cmd.Flags().IntVarP(&opts.targets, "targets", "t", 1, "目标数量")
	cmd.Flags().BoolVar(&opts.group, "group", false, "技能作用于一组目标")
	cmd.Flags().DurationVar(&opts.stagger, "stagger", 0, "多目标命中的错开间隔")
	cmd.Flags().IntVar(&opts.charge, "charge", 0, "蓄力等级")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "时机判定配置名")
	cmd.Flags().DurationVar(&opts.pressEvery, "press-every", 0, "自动按键间隔，0 表示不按键")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}

// syncWriter 监听器在事件循环上写输出，与主 goroutine 共享 writer
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// flagRecorder 按 RunID 收集分发的战斗标志
type flagRecorder struct {
	mu    sync.Mutex
	flags map[string][]string
	out   *syncWriter
}

func (r *flagRecorder) OnCombatEvent(flag combatevent.Flag, ev *combatevent.CombatEventContext) {
	label := flag.String()
	if t, ok := ev.Target(); ok && ev.PerTarget {
		label += "@" + t.ID
	}
	r.mu.Lock()
	r.flags[ev.RunID] = append(r.flags[ev.RunID], label)
	r.mu.Unlock()
	if r.out != nil {
		r.out.Printf("  [%s] %s\n", ev.Actor.ID, label)
	}
}

func (r *flagRecorder) take(runID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	flags := r.flags[runID]
	delete(r.flags, runID)
	return flags
}

func buildTargets(n int) []types.Combatant {
	targets := make([]types.Combatant, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, types.Combatant{
			ID:        fmt.Sprintf("enemy-%d", i+1),
			Alignment: types.AlignmentEnemy,
		})
	}
	return targets
}

func runSimulate(ctx context.Context, w io.Writer, cfg *config.Config, recipeID string, opts *simulateOptions) (err error) {
	if opts.iterations < 1 {
		return fmt.Errorf("--iterations 必须大于 0")
	}
	if opts.targets < 0 {
		return fmt.Errorf("--targets 不能为负数")
	}

	log := logger.Named("simulate")
	eng, err := engine.New(cfg, engine.WithLogger(logger.Named("engine")))
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = errors.Join(err, eng.Stop(stopCtx))
	}()

	out := &syncWriter{w: w}
	recorder := &flagRecorder{flags: make(map[string][]string)}
	if !opts.jsonOutput {
		recorder.out = out
	}
	id := eng.Dispatcher().RegisterListener("cli", recorder)
	defer eng.Dispatcher().UnregisterListener(id)

	if opts.pressEvery > 0 {
		pressCtx, cancelPress := context.WithCancel(ctx)
		defer cancelPress()
		utils.SafeGoWithName("simulate.presser", func() {
			ticker := time.NewTicker(opts.pressEvery)
			defer ticker.Stop()
			for {
				select {
				case <-pressCtx.Done():
					return
				case <-ticker.C:
					eng.PressInput(opts.actor, "cli")
				}
			}
		})
	}

	actor := types.Combatant{ID: opts.actor, Alignment: types.AlignmentAlly}
	sel := types.Selection{
		ActionID:        recipeID,
		ChargeLevel:     opts.charge,
		TimedHitProfile: opts.profile,
		StaggerStep:     opts.stagger,
		TargetsGroup:    opts.group,
	}

	reports := make([]*runReport, 0, opts.iterations)
	for i := 1; i <= opts.iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		if !opts.jsonOutput {
			out.Printf("#%d %s\n", i, recipeID)
		}
		result, err := eng.Execute(ctx, recipeID, eng.NewExecutionContext(actor, buildTargets(opts.targets), sel))
		if err != nil {
			return err
		}
		// 等待错开分发的命中事件送达，保证本轮标志完整
		if err := eng.Dispatcher().Wait(ctx); err != nil {
			log.Warn("等待事件分发中断", zap.Error(err))
		}

		report := newRunReport(i, result, recorder.take(result.RunID))
		reports = append(reports, report)
		if !opts.jsonOutput {
			out.Printf("  => groups=%v branches=%d cancelled=%t aborted=%t duration=%s\n",
				report.Groups, report.Branches, report.Cancelled, report.Aborted, report.Duration)
		}
	}

	summary := eng.Metrics().Summary()
	if opts.jsonOutput {
		s, err := utils.ToJSONPretty(&simulateReport{Runs: reports, Metrics: summary})
		if err != nil {
			return err
		}
		out.Printf("%s\n", s)
		return nil
	}
	s, err := utils.ToJSONPretty(summary)
	if err != nil {
		return err
	}
	out.Printf("metrics:\n%s\n", s)
	return nil
}

func newRunReport(iteration int, result *types.RecipeResult, flags []string) *runReport {
	r := &runReport{
		Iteration: iteration,
		RunID:     result.RunID,
		RecipeID:  result.RecipeID,
		Groups:    make([]string, 0, len(result.Groups)),
		Flags:     flags,
		Cancelled: result.Cancelled,
		Aborted:   result.Aborted,
		Reason:    result.Reason,
		Branches:  result.Branches,
		Steps:     make(map[string]int),
		Duration:  result.Duration.Round(time.Millisecond).String(),
	}
	if r.Flags == nil {
		r.Flags = []string{}
	}
	for _, g := range result.Groups {
		r.Groups = append(r.Groups, g.GroupID)
	}
	for status, n := range result.StepCounts() {
		r.Steps[string(status)] = n
	}
	return r
}
