package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/model"
	"github.com/harunnryd/kangae/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [input]",
	Short: "Run the staged preprocessing pipeline on an input",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAPIKey(cfg); err != nil {
			return err
		}
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		stages := configuredStages(cfg, c.fallback)
		orchestrator := pipeline.New(stages, pipeline.Options{
			AnnotateSteps: true,
			Cache:         c.cache,
		})

		result, err := orchestrator.Run(cmd.Context(), strings.Join(args, " "))
		for _, record := range result.Stages {
			fmt.Println(stepStyle.Render(record.StageName) + " " +
				labelStyle.Render(fmt.Sprintf("(%s, %d tokens, %dms)",
					record.ModelID, record.TokenUsage.TotalTokens, record.ElapsedMs)))
		}
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Final result"))
		fmt.Println(result.FinalResult)
		fmt.Println(kv("total_tokens", fmt.Sprintf("%d", result.TotalTokens)))
		return nil
	},
}

// configuredStages maps pipeline configuration onto orchestrator stages.
// With no stages configured, a default analysis/reasoning/synthesis
// sequence on the default model is used.
func configuredStages(cfg *config.Config, querier model.Querier) []pipeline.Stage {
	entries := append([]config.PipelineStage(nil), cfg.Pipeline.Stages...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority > entries[j].Priority })

	stages := make([]pipeline.Stage, 0, len(entries))
	for _, entry := range entries {
		modelID := entry.Model
		if modelID == "" {
			modelID = cfg.Models.Default
		}
		temperature := entry.Temperature
		if temperature == 0 {
			temperature = config.DefaultPipelineStageTemperature
		}
		maxTokens := entry.MaxTokens
		if maxTokens <= 0 {
			maxTokens = config.DefaultPipelineStageMaxTokens
		}
		stages = append(stages, pipeline.Stage{
			Name:         entry.Name,
			Querier:      querier,
			ModelID:      modelID,
			SystemPrompt: entry.SystemPrompt,
			Temperature:  temperature,
			MaxTokens:    maxTokens,
		})
	}
	if len(stages) > 0 {
		return stages
	}

	prompts := map[string]string{
		"analysis":  config.DefaultPipelineAnalysisPrompt,
		"reasoning": config.DefaultPipelineReasoningPrompt,
		"synthesis": config.DefaultPipelineSynthesisPrompt,
	}
	for _, name := range []string{"analysis", "reasoning", "synthesis"} {
		stages = append(stages, pipeline.Stage{
			Name:         name,
			Querier:      querier,
			ModelID:      cfg.Models.Default,
			SystemPrompt: prompts[name],
			Temperature:  config.DefaultPipelineStageTemperature,
			MaxTokens:    config.DefaultPipelineStageMaxTokens,
		})
	}
	return stages
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
