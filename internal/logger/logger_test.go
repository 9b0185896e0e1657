package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: "info", want: zapcore.InfoLevel},
		{in: "warn", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "verbose", want: zapcore.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		l, err := New("warn", format)
		if err != nil {
			t.Fatalf("New(%s) error = %v", format, err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("New(%s): info should be disabled at warn level", format)
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("New(%s): error should be enabled at warn level", format)
		}
	}

	if _, err := New("loud", "json"); err == nil {
		t.Error("New() with invalid level should fail")
	}
}

func TestInitAndGet(t *testing.T) {
	if err := Init("debug", "text"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !Get().Core().Enabled(zapcore.DebugLevel) {
		t.Error("Get() should return the initialized debug logger")
	}
	if ForArtifact("qwen") == nil {
		t.Error("ForArtifact() returned nil")
	}
	_ = Sync()

	if err := Init("nope", "json"); err == nil {
		t.Error("Init() with invalid level should fail")
	}
}
