package logging

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToTextAndInfo(t *testing.T) {
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("LOG_LEVEL")

	log := New()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	_, isText := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestNewHonorsJSONFormatAndLevel(t *testing.T) {
	os.Setenv("LOG_FORMAT", "json")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Unsetenv("LOG_FORMAT")
	defer os.Unsetenv("LOG_LEVEL")

	log := New()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	_, isJSON := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestComponentTagsField(t *testing.T) {
	entry := Component(New(), "task")
	assert.Equal(t, "task", entry.Data["component"])
}
