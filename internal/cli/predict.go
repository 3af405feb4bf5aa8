package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/budget"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/nutrition"
	"github.com/haskel/foodia/internal/recognizer"
)

var predictCmd = &cobra.Command{
	Use:   "predict <image>",
	Short: "Recognise the dish in a photo",
	Long: `Predict the dish in a photo and estimate its calories. With --goal the meal is
also checked against the budget for that goal and slot.

The model is loaded from the artifacts directory, or the photo is sent to a
running server when --server is given.`,
	Example: `  foodia predict lunch.jpg
  foodia predict lunch.jpg --top-k 5 --goal weight_loss --slot lunch
  foodia predict lunch.jpg --server http://localhost:8501 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

var (
	predictTopK   int
	predictBudget budgetFlags
)

// budgetFlags are shared by predict and budget.
type budgetFlags struct {
	goal      string
	slot      string
	budget    float64
	dailyGoal float64
}

func (f *budgetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.goal, "goal", "", "fitness goal: weight_loss, muscle_gain or maintenance")
	cmd.Flags().StringVar(&f.slot, "slot", "", "meal slot: breakfast, lunch, snack or dinner")
	cmd.Flags().Float64Var(&f.budget, "budget", 0, "meal budget in kcal (default from goal and slot)")
	cmd.Flags().Float64Var(&f.dailyGoal, "daily-goal", 0, "daily goal in kcal (default from goal)")
}

func (f *budgetFlags) resolve() (budget.Input, error) {
	return budget.Resolve(f.goal, f.slot, f.budget, f.dailyGoal)
}

func init() {
	predictCmd.Flags().IntVarP(&predictTopK, "top-k", "k", 0, "number of ranked predictions (default from config)")
	predictBudget.register(predictCmd)
	rootCmd.AddCommand(predictCmd)
}

type predictOutput struct {
	recognizer.Result
	Budget *budget.Evaluation `json:"budget,omitempty"`
}

func runPredict(cmd *cobra.Command, args []string) error {
	path := args[0]

	// fail on bad budget flags before any model work
	var in *budget.Input
	if predictBudget.goal != "" {
		resolved, err := predictBudget.resolve()
		if err != nil {
			return err
		}
		in = &resolved
	}

	var (
		out predictOutput
		err error
	)
	if serverURL != "" {
		out, err = predictRemote(cmd.Context(), path)
	} else {
		out, err = predictLocal(cmd.Context(), path, in)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, renderPrediction(out.Result))
		if out.Budget != nil {
			fmt.Fprintln(w, renderEvaluation(*out.Budget))
		}
	}

	if !out.Success {
		return errors.New("prediction failed")
	}
	return nil
}

func predictLocal(ctx context.Context, path string, in *budget.Input) (predictOutput, error) {
	cfg, err := loadConfig()
	if err != nil {
		return predictOutput{}, err
	}
	log := newLogger(cfg)

	table, err := nutrition.LoadTable(ctx, cfg.Artifacts.NutritionDB)
	if err != nil {
		log.Warn("nutrition table unavailable, using keyword estimates", "error", err)
	}

	store := artifact.NewStore(cfg.Artifacts.Dir, logger.Component(log, "artifact"))
	rec := recognizer.New(store, table, logger.Component(log, "recognizer"))

	topK := predictTopK
	if topK <= 0 {
		topK = cfg.Inference.TopK
	}

	out := predictOutput{Result: rec.PredictFile(path, topK)}
	if out.Success && in != nil {
		in.Calories = out.Calories
		eval, err := budget.Evaluate(*in)
		if err != nil {
			return out, err
		}
		out.Budget = &eval
	}
	return out, nil
}

func predictRemote(ctx context.Context, path string) (predictOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return predictOutput{}, fmt.Errorf("failed to read image: %w", err)
	}

	q := url.Values{}
	if predictTopK > 0 {
		q.Set("top_k", strconv.Itoa(predictTopK))
	}
	if f := predictBudget; f.goal != "" {
		q.Set("goal", f.goal)
		if f.slot != "" {
			q.Set("slot", f.slot)
		}
		if f.budget > 0 {
			q.Set("budget", strconv.FormatFloat(f.budget, 'f', -1, 64))
		}
		if f.dailyGoal > 0 {
			q.Set("daily_goal", strconv.FormatFloat(f.dailyGoal, 'f', -1, 64))
		}
	}

	resp, err := NewClient().Predict(ctx, data, q)
	if err != nil {
		return predictOutput{}, fmt.Errorf("failed to predict: %w", err)
	}
	out := predictOutput(*resp)
	if out.TopPredictions == nil {
		out.TopPredictions = []recognizer.Prediction{}
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
