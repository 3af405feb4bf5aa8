package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/nutrition"
)

var caloriesCmd = &cobra.Command{
	Use:   "calories <meal>",
	Short: "Look up the calories of a dish",
	Long: `Look up a dish in the nutrition table saved by the last training run. Dishes
that are not in the table get a keyword estimate. With --server the lookup is
done by the running server against the table it loaded.`,
	Example: `  foodia calories "Miso Soup"
  foodia calories pizza --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCalories,
}

func init() {
	rootCmd.AddCommand(caloriesCmd)
}

type caloriesOutput struct {
	Meal     string  `json:"meal"`
	Calories float64 `json:"calories"`
	Source   string  `json:"source"`
}

func runCalories(cmd *cobra.Command, args []string) error {
	meal := strings.Join(args, " ")

	var (
		out caloriesOutput
		err error
	)
	if serverURL != "" {
		out, err = caloriesRemote(cmd.Context(), meal)
	} else {
		out, err = caloriesLocal(cmd.Context(), meal)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "%s %s %s\n",
		titleStyle.Render(meal),
		valueStyle.Render(fmt.Sprintf("%.0f kcal", out.Calories)),
		mutedStyle.Render("("+out.Source+")"),
	)
	return nil
}

func caloriesLocal(ctx context.Context, meal string) (caloriesOutput, error) {
	cfg, err := loadConfig()
	if err != nil {
		return caloriesOutput{}, err
	}

	table, err := nutrition.LoadTable(ctx, cfg.Artifacts.NutritionDB)
	if err != nil {
		newLogger(cfg).Warn("nutrition table unavailable, using keyword estimates", "error", err)
	}

	out := caloriesOutput{Meal: meal, Source: "estimate"}
	if cal, ok := table.Lookup(meal); ok {
		out.Calories, out.Source = cal, "table"
	} else {
		out.Calories = nutrition.Estimate(meal)
	}
	return out, nil
}

func caloriesRemote(ctx context.Context, meal string) (caloriesOutput, error) {
	resp, err := NewClient().Calories(ctx, meal)
	if err != nil {
		return caloriesOutput{}, err
	}
	return caloriesOutput(*resp), nil
}
