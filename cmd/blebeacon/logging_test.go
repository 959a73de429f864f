package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    logrus.Level
		wantErr bool
	}{
		{"fallback", nil, logrus.WarnLevel, false},
		{"verbose", []string{"--verbose"}, logrus.DebugLevel, false},
		{"log level wins over verbose", []string{"--verbose", "--log-level", "error"}, logrus.ErrorLevel, false},
		{"invalid level", []string{"--log-level", "chatty"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "test"}
			cmd.Flags().String("log-level", "", "")
			cmd.Flags().Bool("verbose", false, "")
			require.NoError(t, cmd.Flags().Parse(tt.args))

			logger, err := configureLogger(cmd, "verbose", logrus.WarnLevel)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
