package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/tool"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Run one completion through the provider fallback chain",
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
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		optimize, _ := cmd.Flags().GetBool("optimize")

		out, err := c.service.Generate(cmd.Context(), tool.GenerateInput{
			Prompt:         strings.Join(args, " "),
			Model:          modelID,
			MaxTokens:      maxTokens,
			OptimizeTokens: optimize,
		})
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Response"))
		fmt.Println(out.Response)
		fmt.Println(kv("model", out.ModelID))
		fmt.Println(kv("tokens", fmt.Sprintf("%d", out.TokenUsage.TotalTokens)))
		if out.Cached {
			fmt.Println(labelStyle.Render("(served from cache)"))
		}
		if out.Optimization != nil && out.Optimization.Savings > 0 {
			fmt.Println(kv("optimizer", fmt.Sprintf("%s saved %d tokens",
				out.Optimization.Strategy, out.Optimization.Savings)))
		}

		if err := c.history.Save(); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().String("model", "", "model id (defaults to models.default)")
	generateCmd.Flags().Int("max-tokens", 0, "completion token cap")
	generateCmd.Flags().Bool("optimize", false, "compress the prompt before dispatch")
}
