package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/tool"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain [system...]",
	Short: "Sweep cache, memory, thinking, and optimization data",
	Long:  `Runs maintenance over the named systems (cache, memory, thinking, optimization) or all of them when none are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		systems := args
		if len(systems) == 0 {
			systems = []string{"all"}
		}
		removed, err := c.service.PerformMaintenance(cmd.Context(), tool.MaintenanceInput{Systems: systems})
		if err != nil {
			return err
		}

		names := make([]string, 0, len(removed))
		for name := range removed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(kv(name, fmt.Sprintf("%d removed", removed[name])))
		}
		return c.history.Save()
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd)
}
