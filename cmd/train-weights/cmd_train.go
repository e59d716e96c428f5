package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diabetes-risk-fusion/internal/training"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Compare weight selection methods and save the best",
	Long: `Calibrate lifestyle predictions, split the data 80/20 and score five
candidate weight pairs on the held-out portion: gradient descent, bounded
multi-start minimization, fixed domain-expert weights, a Bayesian blend of
the expert prior with the bounded optimum, and an ensemble vote. The lowest
loss wins.`,
	RunE: runTrain,
}

var (
	trainEpochs   int
	trainFraction float64
	priorStrength float64
)

func init() {
	rootCmd.AddCommand(trainCmd)

	opts := training.DefaultOptions()
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", opts.Epochs, "Gradient descent epochs")
	trainCmd.Flags().Float64Var(&trainFraction, "train-fraction", opts.TrainFraction, "Share of examples used for fitting")
	trainCmd.Flags().Float64Var(&priorStrength, "prior-strength", opts.PriorStrength, "Weight of the expert prior in the Bayesian blend")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env := newEnvironment()

	set, err := env.loadData(ctx)
	if err != nil {
		return err
	}

	opts := training.DefaultOptions()
	opts.Epochs = trainEpochs
	opts.TrainFraction = trainFraction
	opts.PriorStrength = priorStrength

	report, err := env.trainer.Compare(set, opts)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	printReport(report)
	return env.save(report.Artifact())
}

func printReport(r *training.Report) {
	p := r.Performance
	fmt.Printf("Samples: %d (train %d, test %d)\n", p.TrainingSamples, r.TrainSamples, r.TestSamples)
	fmt.Printf("Retinal accuracy:               %.2f%%\n", p.RetinalAccuracy*100)
	fmt.Printf("Lifestyle accuracy (raw):       %.2f%%\n", p.LifestyleAccuracy*100)
	fmt.Printf("Lifestyle accuracy (calibrated): %.2f%%\n", p.LifestyleCalibratedAccuracy*100)

	fmt.Println("\nMethod comparison:")
	for _, c := range r.Candidates {
		marker := " "
		if c.Name == r.Best.Name {
			marker = "*"
		}
		fmt.Printf(" %s %-18s w1=%.3f w2=%.3f loss=%.4f\n", marker, c.Name, c.Weights.Retinal, c.Weights.Lifestyle, c.Loss)
	}
	fmt.Printf("\nSelected %s: retinal=%.3f lifestyle=%.3f (fused accuracy %.2f%%)\n",
		r.Best.Name, r.Best.Weights.Retinal, r.Best.Weights.Lifestyle, p.FusedAccuracyEstimate*100)
}
