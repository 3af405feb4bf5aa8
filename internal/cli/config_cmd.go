package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Long:  `Display the effective configuration: defaults, then the config file, then ${VAR} substitution from the environment and .env files.`,
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var validateOnly bool

func init() {
	configCmd.Flags().BoolVar(&validateOnly, "validate", false, "only validate config, don't print")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		if jsonOut {
			fmt.Fprintf(w, `{"valid":false,"error":%q}`+"\n", err.Error())
		} else {
			fmt.Fprintln(w, errorStyle.Render("Configuration invalid:"), err)
		}
		return err
	}

	if validateOnly {
		if jsonOut {
			fmt.Fprintln(w, `{"valid":true}`)
		} else {
			fmt.Fprintln(w, "Configuration is valid")
		}
		return nil
	}

	var data []byte
	if jsonOut {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
