package main

import (
	"fmt"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/spf13/cobra"

	"yqhp/combat-engine/internal/recipe"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
	"yqhp/combat-engine/pkg/utils"
)

// groupView 步骤组的 JSON 视图
type groupView struct {
	ID      string   `json:"id"`
	Mode    string   `json:"mode,omitempty"`
	Join    string   `json:"join,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
	Steps   []string `json:"steps"`
}

// recipeView 配方的 JSON 视图
type recipeView struct {
	ID     string      `json:"id"`
	Groups []groupView `json:"groups"`
}

func newCatalogCmd() *cobra.Command {
	var (
		dump       bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "catalog <file>",
		Short: "检查配方目录",
		Long: `加载配方目录文件并校验每个配方，默认列出配方 ID 与步骤组。

示例:
  combat-engine catalog configs/recipes.yaml
  combat-engine catalog configs/recipes.yaml --dump`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := recipe.NewLoader(logger.Named("recipe")).LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case dump:
				data, err := c.Marshal()
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(data))
			case jsonOutput:
				views := slice.Map(c.Specs().Recipes, func(_ int, r recipe.RecipeSpec) recipeView {
					return recipeView{
						ID: r.ID,
						Groups: slice.Map(r.Groups, func(_ int, g recipe.GroupSpec) groupView {
							return groupView{
								ID:      g.ID,
								Mode:    g.Mode,
								Join:    g.Join,
								Timeout: g.Timeout,
								Steps: slice.Map(g.Steps, func(_ int, s recipe.StepSpec) string {
									return s.Text
								}),
							}
						}),
					}
				})
				s, err := utils.ToJSONPretty(views)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, s)
			default:
				for _, id := range c.IDs() {
					r, _ := c.Get(id)
					groups := slice.Map(r.Groups(), func(_ int, g types.StepGroup) string { return g.ID() })
					fmt.Fprintf(out, "%-16s %v\n", id, groups)
				}
				fmt.Fprintf(out, "共 %d 个配方\n", c.Len())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "以 YAML 输出规范化后的目录")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}
