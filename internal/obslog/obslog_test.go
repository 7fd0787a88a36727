package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pilot.log")
	logger, err := Build(Options{Level: "debug", Format: "json", ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	logger.Debug("move_played", zap.String("move", "e2e4"), zap.Int("attempt", 2))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &line); err != nil {
		t.Fatalf("not json: %q (%v)", raw, err)
	}
	if line["msg"] != "move_played" || line["move"] != "e2e4" || line["level"] != "debug" {
		t.Fatalf("unexpected entry: %v", line)
	}
}

func TestBuildRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pilot.log")
	logger, err := Build(Options{Level: "warn", Format: "legacy", ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	raw, _ := os.ReadFile(path)
	out := string(raw)
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("log = %q", out)
	}
	if !strings.Contains(out, " | WARN | ") {
		t.Fatalf("legacy separator missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSetNilRestoresNop(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	Set(zap.NewExample())
	if L() == prev {
		t.Fatalf("Set did not replace the logger")
	}
	Set(nil)
	if L().Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("nil should install a no-op logger")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FILE", "")
	opts := OptionsFromEnv()
	if opts.Level != "debug" || opts.Format != "json" || opts.ToFile {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.FilePath != filepath.Join("logs", "boardpilot.log") {
		t.Fatalf("default file = %s", opts.FilePath)
	}
}
