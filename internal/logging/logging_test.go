package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		" error ": logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"chatty":  logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewFormatter(t *testing.T) {
	assert.IsType(t, &logrus.JSONFormatter{}, New("info", "json").Formatter)
	assert.IsType(t, &logrus.TextFormatter{}, New("info", "TEXT").Formatter)
	assert.IsType(t, &logrus.JSONFormatter{}, New("info", "").Formatter)
	assert.Equal(t, logrus.DebugLevel, New("debug", "json").Level)
}
