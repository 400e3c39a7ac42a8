package logging

import "go.uber.org/zap"

// New returns the process logger: JSON to stdout in production,
// human-readable console output otherwise.
func New(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
