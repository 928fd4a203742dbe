package logger

import (
	"go.uber.org/zap"
)

// New returns a development logger in debug mode and a JSON production
// logger otherwise.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewOrNop is New, falling back to a no-op logger on error.
func NewOrNop(debug bool) *zap.Logger {
	l, err := New(debug)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
