package cmd

import (
	"fmt"
	"io"

	"vfrelay/pkg/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Loads defaults, the config file and environment overrides, then prints the result as YAML with secrets masked.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		if err := writeConfig(cmd.OutOrStdout(), cfg); err != nil {
			fmt.Printf("failed to print config: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// writeConfig prints cfg as YAML with secrets masked, followed by the
// validation result as a comment.
func writeConfig(w io.Writer, cfg *config.Config) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		_, err = fmt.Fprintf(w, "# invalid: %v\n", err)
		return err
	}

	_, err := fmt.Fprintln(w, "# valid")
	return err
}
