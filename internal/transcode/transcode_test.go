package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// The stub mimics ffmpeg's CLI contract: last argument is the output path.
func TestExtract_Success(t *testing.T) {
	stub := writeStub(t, `
out=""
for a in "$@"; do out="$a"; done
printf 'fake mp3 bytes' > "$out"
`)
	tc := New(stub)

	audio, cleanup, err := tc.Extract(context.Background(), "/tmp/video.mp4")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	defer cleanup()

	data, err := os.ReadFile(audio)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "fake mp3 bytes" {
		t.Fatalf("unexpected output contents %q", data)
	}

	cleanup()
	if _, err := os.Stat(audio); !os.IsNotExist(err) {
		t.Fatalf("cleanup must remove the temp audio file")
	}
}

func TestExtract_CommandFailure(t *testing.T) {
	stub := writeStub(t, `
echo "moov atom not found" >&2
exit 1
`)
	tc := New(stub)

	_, _, err := tc.Extract(context.Background(), "/tmp/broken.mp4")
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "moov atom not found") {
		t.Fatalf("stderr diagnostic missing from error: %q", got)
	}
}

func TestExtract_EmptyOutput(t *testing.T) {
	stub := writeStub(t, `exit 0`)
	tc := New(stub)

	_, _, err := tc.Extract(context.Background(), "/tmp/video.mp4")
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode for empty output, got %v", err)
	}
}

func TestExtract_MissingBinary(t *testing.T) {
	tc := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"))

	_, _, err := tc.Extract(context.Background(), "/tmp/video.mp4")
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
}

func TestExtract_NoTempFileLeakOnFailure(t *testing.T) {
	stub := writeStub(t, `exit 1`)
	tc := New(stub)

	before := tempAudioCount(t)
	_, _, err := tc.Extract(context.Background(), "/tmp/video.mp4")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if after := tempAudioCount(t); after != before {
		t.Fatalf("temp audio files leaked: before=%d after=%d", before, after)
	}
}

func tempAudioCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "consultation-audio-*.mp3"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return len(matches)
}
