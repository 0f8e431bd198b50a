package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sqlassist/sqlassist-go/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set sqlassist configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		out, err := settings.Masked()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set a config value and save to disk.

Values are parsed as YAML, so numbers and booleans keep their type and
lists can be written inline, e.g.:

  sqlassist config set repair_rules '[{placeholder: raw predicted, substrings: [raw, predict]}]'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]

		settings, cfgFile, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if err := settings.Set(key, val); err != nil {
			return fmt.Errorf("%w (known keys: %s)", err, strings.Join(settings.Keys(), ", "))
		}
		if err := config.Save(settings, cfgFile); err != nil {
			return err
		}
		successColor.Fprintf(cmd.OutOrStdout(), "✓ Saved %s\n", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
