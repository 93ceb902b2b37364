// Package logging wraps logrus with the field conventions this repo's
// components share: task name, viewer/clan id, and query mode attached as
// structured fields rather than interpolated into the message.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger configured from LOG_LEVEL and LOG_FORMAT
// environment variables ("json" or "text", default "text").
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// Component returns a *logrus.Entry pre-tagged with component, the
// convention every package in this repo uses to get its own named logger.
func Component(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}
