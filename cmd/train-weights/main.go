// Command train-weights fits the retinal/lifestyle fusion weights and writes
// the weight artifact read by the servers at startup.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/diabetes-risk-fusion/internal/config"
	"github.com/diabetes-risk-fusion/internal/domain"
	"github.com/diabetes-risk-fusion/internal/fusion"
	"github.com/diabetes-risk-fusion/internal/optimizer"
	"github.com/diabetes-risk-fusion/internal/outcomes"
	"github.com/diabetes-risk-fusion/internal/training"
)

const (
	sourceSynthetic = "synthetic"
	sourceOutcomes  = "outcomes"
)

// Shared flags
var (
	dataSource     string
	samples        int
	seed           uint64
	weightsPath    string
	learningRate   float64
	regularization float64
	dryRun         bool
)

var rootCmd = &cobra.Command{
	Use:   "train-weights",
	Short: "Fit fusion weights from labeled outcomes",
	Long: `Fit the retinal/lifestyle fusion weight pair (w1 + w2 = 1) from labeled
data and save it as the weight artifact.

Data comes from a seeded synthetic population or from the outcomes store
(DATABASE_URL, defaulting to the SQLite file in the data directory).

Examples:
  train-weights train
  train-weights train --source outcomes --epochs 300
  train-weights cross-validate --folds 5 --method bounded`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataSource, "source", sourceSynthetic, "Training data source (synthetic|outcomes)")
	pf.IntVar(&samples, "samples", 1000, "Synthetic sample count")
	pf.Uint64Var(&seed, "seed", 42, "Synthetic data seed")
	pf.StringVar(&weightsPath, "weights", "", "Weight artifact path (default: WEIGHTS_PATH or the data directory)")
	pf.Float64Var(&learningRate, "learning-rate", optimizer.DefaultLearningRate, "Gradient descent learning rate")
	pf.Float64Var(&regularization, "regularization", optimizer.DefaultRegularization, "L2 regularization strength")
	pf.BoolVar(&dryRun, "dry-run", false, "Report results without writing the artifact")
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// environment bundles what every subcommand needs.
type environment struct {
	cfg     *config.LiteConfig
	logger  *logrus.Logger
	trainer *training.Trainer
}

func newEnvironment() *environment {
	cfg := config.LoadLiteConfig()
	logger := config.NewLogger(cfg.LogLevel, "text")
	trainer := training.NewTrainer(logger, optimizer.Config{
		LearningRate:   learningRate,
		Regularization: regularization,
	}, fusion.DefaultCalibrator)
	return &environment{cfg: cfg, logger: logger, trainer: trainer}
}

func (e *environment) artifactPath() string {
	if weightsPath != "" {
		return weightsPath
	}
	return e.cfg.ResolvedWeightsPath()
}

// loadData returns raw (uncalibrated) labeled data from the selected source.
func (e *environment) loadData(ctx context.Context) (domain.TrainingSet, error) {
	switch dataSource {
	case sourceSynthetic:
		synth := training.DefaultSyntheticConfig()
		synth.Samples = samples
		synth.Seed = seed
		set := training.GenerateSynthetic(synth)
		e.logger.WithFields(logrus.Fields{
			"samples": set.Len(),
			"seed":    seed,
		}).Info("Generated synthetic training data")
		return set, nil

	case sourceOutcomes:
		if err := e.cfg.EnsureDataDir(); err != nil {
			return domain.TrainingSet{}, fmt.Errorf("creating data directory: %w", err)
		}
		driver, dsn := e.cfg.OutcomesStore()
		store, err := outcomes.Open(driver, dsn)
		if err != nil {
			return domain.TrainingSet{}, fmt.Errorf("opening outcomes store: %w", err)
		}
		defer store.Close()

		set, err := store.TrainingSet(ctx)
		if err != nil {
			return domain.TrainingSet{}, fmt.Errorf("loading outcomes: %w", err)
		}
		e.logger.WithFields(logrus.Fields{
			"samples": set.Len(),
			"driver":  driver,
		}).Info("Loaded labeled outcomes")
		return set, nil

	default:
		return domain.TrainingSet{}, domain.NewValidationError("source", "must be synthetic or outcomes", dataSource)
	}
}

func (e *environment) save(artifact *optimizer.Artifact) error {
	if dryRun {
		fmt.Println("\nDry run: artifact not written")
		return nil
	}
	path := e.artifactPath()
	if err := optimizer.SaveArtifact(path, artifact); err != nil {
		return err
	}
	fmt.Printf("\nWeights saved to %s\n", path)
	return nil
}
