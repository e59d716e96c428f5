package fusion

import (
	"github.com/sirupsen/logrus"

	"github.com/diabetes-risk-fusion/internal/optimizer"
)

// NewEngineFromArtifact creates an engine using the learned weights at path.
// A missing or unreadable artifact yields the default 0.5/0.5 pair, and the
// second return value reports whether learned weights were found.
func NewEngineFromArtifact(logger *logrus.Logger, cfg Config, path string) (*Engine, bool) {
	artifact := optimizer.LoadArtifact(logger, path)
	return NewEngine(logger, cfg, artifact.Weights()), artifact.Loaded
}
