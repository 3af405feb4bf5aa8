package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/train"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier on a labelled photo folder",
	Long: `Train reads the CSV file and image folder under the dataset path, trains the
classification head and commits the model, label codec and class list to the
artifacts directory. Interrupting the run leaves the previous model in place.`,
	Example: `  foodia train --dataset ./data
  foodia train -c foodia.yaml --epochs 5 --json`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

var (
	trainDataset   string
	trainEpochs    int
	trainSampleCap int
	trainNoAugment bool
)

func init() {
	trainCmd.Flags().StringVarP(&trainDataset, "dataset", "d", "", "dataset folder (default from config)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "override training.epochs")
	trainCmd.Flags().IntVar(&trainSampleCap, "sample-cap", 0, "override dataset.sample_cap (-1 derives it from free memory)")
	trainCmd.Flags().BoolVar(&trainNoAugment, "no-augment", false, "disable data augmentation")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if trainDataset != "" {
		cfg.Dataset.BasePath = trainDataset
	}
	if trainEpochs > 0 {
		cfg.Training.Epochs = trainEpochs
	}
	if cmd.Flags().Changed("sample-cap") {
		cfg.Dataset.SampleCap = trainSampleCap
	}
	if trainNoAugment {
		cfg.Training.Augmentation.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg)
	log.Info("foodia train starting",
		"version", Version,
		"dataset", cfg.Dataset.BasePath,
		"artifacts", cfg.Artifacts.Dir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := artifact.NewStore(cfg.Artifacts.Dir, logger.Component(log, "artifact"))
	pipeline := train.NewPipeline(train.OptionsFromConfig(cfg), store, logger.Component(log, "train"))

	report, err := pipeline.Run(ctx, cfg.Dataset.BasePath)
	if err != nil {
		log.Error("training did not complete", "state", pipeline.State(), "error", err)
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

func printReport(w io.Writer, r *train.Report) {
	fmt.Fprintln(w, titleStyle.Render("Training complete"))
	fmt.Fprintln(w, row("Run", r.Manifest.RunID))
	fmt.Fprintln(w, row("Classes", fmt.Sprintf("%d", len(r.Classes))))
	fmt.Fprintln(w, row("Images", fmt.Sprintf("%d loaded, %d failed, %d missing", r.Images.Loaded, r.Images.Failed, r.Records.Missing)))
	fmt.Fprintln(w, row("Split", fmt.Sprintf("%d / %d / %d", r.Split.Train, r.Split.Validation, r.Split.Test)))
	fmt.Fprintln(w, row("Epochs", fmt.Sprintf("%d (best %d)", len(r.History), r.BestEpoch)))
	fmt.Fprintln(w, row("Test acc", fmt.Sprintf("%.1f%%", r.TestAccuracy*100)))
	fmt.Fprintln(w, row("Test loss", fmt.Sprintf("%.4f", r.TestLoss)))
	fmt.Fprintln(w, row("Duration", r.Duration.Round(1e6).String()))
}
