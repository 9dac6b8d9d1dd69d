package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/teamwork/internal/logging"
)

const sampleLog = `{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"team created","team":"alpha","component":"manager"}
{"time":"2026-03-01T10:00:01Z","level":"WARN","msg":"lock contention","team":"alpha","teammate":"dev","component":"dirlock"}
{"time":"2026-03-01T10:00:02Z","level":"ERROR","msg":"executor failed","team":"beta","teammate":"qa","component":"worker"}
`

func setupLogDir(t *testing.T) string {
	t.Helper()
	setupTestEnvironment(t)
	logDir := t.TempDir()
	t.Setenv("TEAMWORK_LOGGING_DIR", logDir)
	if err := os.WriteFile(filepath.Join(logDir, logging.LogFileName), []byte(sampleLog), 0o644); err != nil {
		t.Fatal(err)
	}
	return logDir
}

func TestLogsCommand(t *testing.T) {
	setupLogDir(t)

	t.Run("all entries", func(t *testing.T) {
		out := mustExecute(t, "logs", "-n", "0")
		for _, msg := range []string{"team created", "lock contention", "executor failed"} {
			if !strings.Contains(out, msg) {
				t.Errorf("output missing %q:\n%s", msg, out)
			}
		}
	})

	t.Run("tail", func(t *testing.T) {
		out := mustExecute(t, "logs", "-n", "1")
		if strings.Contains(out, "team created") || !strings.Contains(out, "executor failed") {
			t.Errorf("tail 1 should show only the newest entry:\n%s", out)
		}
	})

	t.Run("filters", func(t *testing.T) {
		out := mustExecute(t, "logs", "--team", "alpha", "--level", "warn")
		if strings.TrimSpace(out) == "" || strings.Count(strings.TrimSpace(out), "\n") != 0 {
			t.Fatalf("want exactly one line, got:\n%s", out)
		}
		if !strings.Contains(out, "[alpha/dev/dirlock] lock contention") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("grep", func(t *testing.T) {
		out := mustExecute(t, "logs", "--grep", "EXECUTOR")
		if !strings.Contains(out, "executor failed") || strings.Contains(out, "lock contention") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		out := mustExecute(t, "--json", "logs", "--component", "worker")
		if !strings.Contains(out, `"teammate": "qa"`) {
			t.Errorf("unexpected JSON:\n%s", out)
		}
	})
}

func TestLogsCommand_NoLogDir(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("TEAMWORK_LOGGING_DIR", "")

	_, err := executeCommand(t, "logs")
	if err == nil || !strings.Contains(err.Error(), "logging.dir") {
		t.Errorf("expected logging.dir error, got %v", err)
	}
}

func TestReadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), logging.LogFileName)
	if err := os.WriteFile(path, []byte(sampleLog+`{"time":"2026-03-01T10:00:03Z","level":"INFO","msg":"parti`), 0o644); err != nil {
		t.Fatal(err)
	}

	var got []string
	emit := func(e logging.Entry) { got = append(got, e.Message) }

	offset, err := readFrom(path, 0, emit)
	if err != nil {
		t.Fatalf("readFrom failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("emitted %v, want the 3 complete lines", got)
	}
	if offset != int64(len(sampleLog)) {
		t.Errorf("offset = %d, want %d", offset, len(sampleLog))
	}

	// Nothing new until the partial line is finished.
	got = nil
	if offset, _ = readFrom(path, offset, emit); len(got) != 0 {
		t.Errorf("partial line should not be emitted, got %v", got)
	}

	// A rotated (shorter) file is read from the start.
	if err := os.WriteFile(path, []byte(`{"level":"INFO","msg":"fresh"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readFrom(path, offset, emit); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "fresh" {
		t.Errorf("after rotation got %v, want [fresh]", got)
	}

	// A missing file resets the offset.
	if off, err := readFrom(filepath.Join(t.TempDir(), "gone.log"), 42, emit); err != nil || off != 0 {
		t.Errorf("missing file: offset %d, err %v", off, err)
	}
}
