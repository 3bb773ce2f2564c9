package main

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/alcosklad/alcoapp-sub000/internal/app"
)

func TestSetupLogger(t *testing.T) {
	defer func() {
		log.SetFormatter(&log.TextFormatter{})
		log.SetLevel(log.InfoLevel)
	}()

	tests := []struct {
		name      string
		format    string
		level     string
		wantLevel log.Level
		wantJSON  bool
	}{
		{name: "json debug", format: "json", level: "debug", wantLevel: log.DebugLevel, wantJSON: true},
		{name: "text warn", format: "text", level: "warn", wantLevel: log.WarnLevel},
		{name: "unknown level falls back to info", format: "text", level: "loud", wantLevel: log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := app.DefaultConfig()
			cfg.LogFormat = tt.format
			cfg.LogLevel = tt.level

			setupLogger(cfg)

			if got := log.GetLevel(); got != tt.wantLevel {
				t.Fatalf("level = %s, want %s", got, tt.wantLevel)
			}
			_, isJSON := log.StandardLogger().Formatter.(*log.JSONFormatter)
			if isJSON != tt.wantJSON {
				t.Fatalf("json formatter = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}
