package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/tool"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [text]",
	Short: "Estimate the token count of a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		modelID, _ := cmd.Flags().GetString("model")
		out := c.service.EstimateTokens(tool.EstimateTokensInput{
			Text:  strings.Join(args, " "),
			Model: modelID,
		})
		fmt.Println(kv("tokens", fmt.Sprintf("%d", out.Count)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	estimateCmd.Flags().String("model", "", "model id whose learned ratio to apply")
}
