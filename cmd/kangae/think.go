package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/tool"
)

var thinkCmd = &cobra.Command{
	Use:   "think [problem]",
	Short: "Run the iterative reasoning loop on a problem",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAPIKey(cfg); err != nil {
			return err
		}
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		modelID, _ := cmd.Flags().GetString("model")
		strategyName, _ := cmd.Flags().GetString("strategy")
		optimize, _ := cmd.Flags().GetBool("optimize")
		visualize, _ := cmd.Flags().GetBool("visualize")

		out, err := c.service.ThinkingProcess(cmd.Context(), tool.ThinkingInput{
			Problem:              strings.Join(args, " "),
			ThinkingModel:        modelID,
			Strategy:             strategyName,
			OptimizeTokens:       optimize,
			IncludeVisualization: visualize,
		})
		if err != nil {
			return err
		}

		result := out.Result
		fmt.Println(titleStyle.Render("Thinking result"))
		fmt.Println(kv("problem_id", result.ProblemID))
		fmt.Println(kv("strategy", result.StateMetrics.StrategyName))
		fmt.Println(kv("final_state", result.StateMetrics.FinalState))
		fmt.Println(kv("steps", fmt.Sprintf("%d", len(result.Steps))))
		fmt.Println(kv("tokens", fmt.Sprintf("%d", result.TokenUsage)))
		fmt.Println(kv("elapsed", result.ExecutionTime.String()))

		for i, step := range result.Steps {
			fmt.Println(stepStyle.Render(fmt.Sprintf("%d. %s", i+1, step.Description)))
			fmt.Println("   " + valueStyle.Render(step.Reasoning))
		}
		if out.Visualization != "" {
			fmt.Println(titleStyle.Render("Steps"))
			fmt.Println(out.Visualization)
		}
		if result.Err != nil {
			fmt.Println(errorStyle.Render("run ended on error: " + result.Err.Error()))
		}

		return c.history.Save()
	},
}

func init() {
	rootCmd.AddCommand(thinkCmd)
	thinkCmd.Flags().String("model", "", "thinking model id")
	thinkCmd.Flags().String("strategy", "", "force a strategy (standard, minimal, strategic, chain_of_thought, tree_of_thoughts, composite[:mode[:child+child]])")
	thinkCmd.Flags().Bool("optimize", false, "compress context between steps")
	thinkCmd.Flags().Bool("visualize", false, "render a step status list")
}
