package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/combat-engine/internal/recipe"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
	"yqhp/combat-engine/pkg/utils"
)

// stepView 步骤的 JSON 视图
type stepView struct {
	ID         string            `json:"id,omitempty"`
	ExecutorID string            `json:"executor"`
	BindingID  string            `json:"binding,omitempty"`
	Conflict   string            `json:"conflict"`
	Delay      string            `json:"delay,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Text       string            `json:"text"`
}

func newStepView(s types.Step) stepView {
	v := stepView{
		ID:         s.ID(),
		ExecutorID: s.ExecutorID(),
		BindingID:  s.BindingID(),
		Conflict:   s.Conflict().String(),
		Params:     s.Params(),
		Text:       s.String(),
	}
	if s.Delay() > 0 {
		v.Delay = s.Delay().String()
	}
	return v
}

func newParseCmd() *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "解析步骤文本",
		Long: `解析以 " | " 分隔的步骤文本，输出每个步骤的结构。

示例:
  combat-engine parse "wait(duration=0.2) | emit(topic=hit)"
  combat-engine parse --canonical "timed_hit(kind=instant , on_perfect=branch:finisher)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			steps, err := recipe.NewParser(logger.Named("recipe")).ParseSteps(text)
			if err != nil {
				return err
			}
			if canonical {
				fmt.Fprintln(cmd.OutOrStdout(), recipe.FormatSteps(steps))
				return nil
			}
			views := make([]stepView, 0, len(steps))
			for _, s := range steps {
				views = append(views, newStepView(s))
			}
			out, err := utils.ToJSONPretty(views)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&canonical, "canonical", false, "只输出规范化后的步骤文本")
	return cmd
}
