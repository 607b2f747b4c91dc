package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/subseactl/fleetd/pkg/logger"
)

func TestRun_InvalidMigrationPath(t *testing.T) {
	err := Run("postgres://invalid", "/nonexistent/path", logger.New("test"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create migrate instance")
}

func TestRun_InvalidDBURL(t *testing.T) {
	err := Run("invalid-url", ".", logger.New("test"))
	assert.Error(t, err)
}

// Full integration tests for successful migrations would require a running
// PostgreSQL instance and the real migrations directory; these exercise the
// error paths that don't need one.

func TestRun_ErrorHandling(t *testing.T) {
	err := Run("", "", logger.New("test"))
	assert.Error(t, err)
	assert.NotNil(t, err)
}
