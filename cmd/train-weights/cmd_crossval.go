package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/optimizer"
)

var crossValidateCmd = &cobra.Command{
	Use:   "cross-validate",
	Short: "Average per-fold optimal weights over k folds",
	RunE:  runCrossValidate,
}

var (
	cvFolds  int
	cvMethod string
)

func init() {
	rootCmd.AddCommand(crossValidateCmd)

	crossValidateCmd.Flags().IntVar(&cvFolds, "folds", 5, "Number of folds")
	crossValidateCmd.Flags().StringVar(&cvMethod, "method", string(optimizer.MethodBounded), "Per-fold method (gradient|bounded)")
}

func runCrossValidate(cmd *cobra.Command, args []string) error {
	method := optimizer.Method(cvMethod)
	if !method.IsValid() {
		return domain.NewValidationError("method", "must be gradient or bounded", cvMethod)
	}

	ctx := context.Background()
	env := newEnvironment()

	set, err := env.loadData(ctx)
	if err != nil {
		return err
	}

	result, artifact, err := env.trainer.CrossValidate(set, cvFolds, method)
	if err != nil {
		return fmt.Errorf("cross-validation failed: %w", err)
	}

	for i, w := range result.AllWeights {
		fmt.Printf("Fold %d: w1=%.3f w2=%.3f\n", i+1, w.Retinal, w.Lifestyle)
	}
	fmt.Printf("\nAverage: w1=%.3f (±%.3f) w2=%.3f (±%.3f) loss=%.4f\n",
		result.AverageWeights.Retinal, result.StdW1,
		result.AverageWeights.Lifestyle, result.StdW2,
		result.AverageLoss)

	return env.save(artifact)
}
