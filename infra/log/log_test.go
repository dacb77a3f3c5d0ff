package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
	assert.Equal(t, logrus.InfoLevel, parseLevel("bogus"))
}

func TestComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(logrus.StandardLogger().Out)
	Setup(Config{Level: "info", Format: "json"})
	defer Setup(Config{})

	Component("reclaimer").WithField(KeyView, 7).Info("retired")

	assert.Contains(t, buf.String(), `"component":"reclaimer"`)
	assert.Contains(t, buf.String(), `"view_id":7`)
}
