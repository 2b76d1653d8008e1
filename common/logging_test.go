package common

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogger_Levels(t *testing.T) {
	logger := SetupLogger(&LoggingOpts{Service: "gatekeeper", Version: "test"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = SetupLogger(&LoggingOpts{Debug: true, JSON: true})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
