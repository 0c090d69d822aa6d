package zerolog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(Options{Level: "info", JSON: true, Output: &buf})
	require.NoError(t, err)

	log.WithField("model", "eurusd").WithError(errors.New("boom")).Warnf("skipped %d", 1)
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"model":"eurusd"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"message":"skipped 1"`)
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, logger.InfoLevel, log.GetLevel())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
}
