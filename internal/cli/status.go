package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and the loaded model",
	Long:  `Query a running foodia server for host resources and the committed model artifact.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	server.HealthResponse
	Model *server.ModelResponse `json:"model,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := NewClient()

	health, err := client.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	out := statusOutput{HealthResponse: *health}
	// a denied /model leaves the model section unknown
	if m, err := client.Model(cmd.Context()); err == nil {
		out.Model = m
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, out)
	}
	printStatus(w, out)
	return nil
}

const gib = 1 << 30

func printStatus(w io.Writer, s statusOutput) {
	fmt.Fprintln(w, titleStyle.Render("Server "+s.Status))

	if h := s.Host; h != nil {
		fmt.Fprintln(w, row("CPU", fmt.Sprintf("%.1f%% of %d cores", h.CPU.UsagePercent, len(h.CPU.Cores))))
		fmt.Fprintln(w, row("Memory", fmt.Sprintf("%.1f / %.1f GB", float64(h.Memory.UsedBytes)/gib, float64(h.Memory.TotalBytes)/gib)))

		paths := make([]string, 0, len(h.Storage))
		for p := range h.Storage {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			d := h.Storage[p]
			fmt.Fprintln(w, row("Disk", fmt.Sprintf("%s %.1f GB free / %.1f GB", p, float64(d.FreeBytes)/gib, float64(d.TotalBytes)/gib)))
		}
	}

	m := s.Model
	switch {
	case m == nil:
		fmt.Fprintln(w, row("Model", mutedStyle.Render("unknown")))
	case !m.Exists || m.Manifest == nil:
		fmt.Fprintln(w, row("Model", errorStyle.Render("not trained")))
	default:
		fmt.Fprintln(w, row("Model", m.Manifest.RunID))
		fmt.Fprintln(w, row("Classes", fmt.Sprintf("%d", m.Manifest.NumClasses)))
		fmt.Fprintln(w, row("Test acc", fmt.Sprintf("%.1f%%", m.Manifest.TestAccuracy*100)))
		fmt.Fprintln(w, row("Trained", m.Manifest.CreatedAt.Format("2006-01-02 15:04")))
		if !m.Loaded {
			fmt.Fprintln(w, errorStyle.Render("model present but not loaded by the server"))
		}
	}
}
