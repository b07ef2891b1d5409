// Package logger builds the process-wide zap logger.
package logger

import "go.uber.org/zap"

func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
