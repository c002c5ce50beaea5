package cli

import (
	"fmt"

	"github.com/davarch/buildgate/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable <stage_name>",
	Short: "Disable stage by name in config.yaml",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		changed := false
		for i := range cfg.Pipeline.Stages {
			if cfg.Pipeline.Stages[i].Name == name {
				if cfg.Pipeline.Stages[i].Enabled {
					cfg.Pipeline.Stages[i].Enabled = false
					changed = true
				}
			}
		}

		if !changed {
			fmt.Printf("no change (stage %q already disabled or not found)\n", name)
			return nil
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Printf("disabled: %s\n", name)

		return nil
	},
}

func init() {
	disableCmd.ValidArgsFunction = enableCmd.ValidArgsFunction

	rootCmd.AddCommand(disableCmd)
}
