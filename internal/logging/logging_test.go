package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"ERROR":   LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", input, got, err)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(empty) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remapd.log")
	logger, err := New(&Config{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Output:     "file",
		FilePath:   path,
		MaxSize:    1,
		MaxBackups: 1,
		Component:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Info("device grabbed", "name", "kbd0")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "device grabbed") {
		t.Errorf("log missing message: %q", content)
	}
	if !strings.Contains(content, `"component":"test"`) {
		t.Errorf("log missing component: %q", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remapd.log")
	logger, err := New(&Config{
		Level:    LevelWarn,
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Debug("hidden")
	logger.Warn("visible")

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written despite warn level")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("warn entry missing")
	}
}

func TestSetLevelAtRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remapd.log")
	logger, err := New(&Config{
		Level:    LevelInfo,
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Debug("before")
	logger.SetLevel(LevelDebug)
	logger.Debug("after")

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "before") {
		t.Error("debug entry written before level change")
	}
	if !strings.Contains(string(data), "after") {
		t.Error("debug entry missing after level change")
	}
}

func TestWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remapd.log")
	logger, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.WithComponent("stage").Info("hello")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"component":"stage"`) {
		t.Errorf("component attribute missing: %q", string(data))
	}
}
