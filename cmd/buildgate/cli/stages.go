package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/davarch/buildgate/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	stagesOnlyEnabled  bool
	stagesOnlyDisabled bool
	stagesJSON         bool
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List pipeline stages from config.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		items := make([]config.Stage, 0, len(cfg.Pipeline.Stages))
		for _, s := range cfg.Pipeline.Stages {
			if stagesOnlyEnabled && !s.Enabled {
				continue
			}
			if stagesOnlyDisabled && s.Enabled {
				continue
			}
			items = append(items, s)
		}

		if stagesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tTYPE\tCOMMAND\tREQUIRED\tENABLED")
		for _, s := range items {
			req := "false"
			if s.Required {
				req = "true"
			}
			en := "false"
			if s.Enabled {
				en = "true"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Name, s.Type, strings.Join(s.Command, " "), req, en)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesOnlyEnabled, "enabled", false, "show only enabled stages")
	stagesCmd.Flags().BoolVar(&stagesOnlyDisabled, "disabled", false, "show only disabled stages")
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "print JSON")

	stagesCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if stagesOnlyEnabled && stagesOnlyDisabled {
			return fmt.Errorf("flags --enabled and --disabled are mutually exclusive")
		}
		return nil
	}

	rootCmd.AddCommand(stagesCmd)
}
