package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/artifact"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Describe the committed model artifact",
	Args:  cobra.NoArgs,
	RunE:  runModel,
}

func init() {
	rootCmd.AddCommand(modelCmd)
}

func runModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	info := artifact.NewStore(cfg.Artifacts.Dir, newLogger(cfg)).Info()

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, info)
	}

	if !info.Exists || info.Manifest == nil {
		fmt.Fprintln(w, errorStyle.Render("No model in "+info.Dir))
		if info.Error != "" {
			fmt.Fprintln(w, mutedStyle.Render(info.Error))
		}
		return nil
	}

	m := info.Manifest
	fmt.Fprintln(w, titleStyle.Render("Model "+m.RunID))
	fmt.Fprintln(w, row("Trained", m.CreatedAt.Format("2006-01-02 15:04")))
	fmt.Fprintln(w, row("Classes", fmt.Sprintf("%d", m.NumClasses)))
	fmt.Fprintln(w, row("Image size", fmt.Sprintf("%dpx", m.ImageSize)))
	fmt.Fprintln(w, row("Test acc", fmt.Sprintf("%.1f%%", m.TestAccuracy*100)))
	for _, f := range info.Files {
		fmt.Fprintln(w, row("", fmt.Sprintf("%s %s", f.Name, mutedStyle.Render(fmt.Sprintf("%d bytes", f.Size)))))
	}
	return nil
}
