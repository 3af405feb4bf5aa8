package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/budget"
	"github.com/haskel/foodia/internal/server"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Check a meal's calories against a goal budget",
	Example: `  foodia budget --calories 650 --goal weight_loss --slot lunch
  foodia budget --calories 820 --goal muscle_gain --budget 900 --daily-goal 2800
  foodia budget --calories 480 --goal maintenance --server http://localhost:8501`,
	Args: cobra.NoArgs,
	RunE: runBudget,
}

var (
	budgetCalories float64
	budgetInput    budgetFlags
)

func init() {
	budgetCmd.Flags().Float64Var(&budgetCalories, "calories", 0, "meal calories in kcal")
	budgetInput.register(budgetCmd)
	budgetCmd.MarkFlagRequired("calories")
	budgetCmd.MarkFlagRequired("goal")
	rootCmd.AddCommand(budgetCmd)
}

func runBudget(cmd *cobra.Command, args []string) error {
	if budgetCalories < 0 {
		return errors.New("calories must not be negative")
	}

	var (
		eval budget.Evaluation
		err  error
	)
	if serverURL != "" {
		eval, err = budgetRemote(cmd.Context())
	} else {
		eval, err = budgetLocal()
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, eval)
	}
	fmt.Fprintln(w, renderEvaluation(eval))
	return nil
}

func budgetLocal() (budget.Evaluation, error) {
	in, err := budgetInput.resolve()
	if err != nil {
		return budget.Evaluation{}, err
	}
	in.Calories = budgetCalories
	return budget.Evaluate(in)
}

func budgetRemote(ctx context.Context) (budget.Evaluation, error) {
	eval, err := NewClient().Budget(ctx, server.BudgetRequest{
		Calories:  budgetCalories,
		Goal:      budgetInput.goal,
		Slot:      budgetInput.slot,
		Budget:    budgetInput.budget,
		DailyGoal: budgetInput.dailyGoal,
	})
	if err != nil {
		return budget.Evaluation{}, err
	}
	return *eval, nil
}
