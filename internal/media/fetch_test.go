package media

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/internal/safety"
)

func writeFakeDownloader(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake downloader script is POSIX shell only")
	}
	path := filepath.Join(t.TempDir(), "fake-yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestFetch_RejectsUnsafeURL(t *testing.T) {
	f := &Fetcher{BinaryPath: "yt-dlp"}
	_, err := f.Fetch(context.Background(), "https://127.0.0.1/video", t.TempDir(), "")
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, KindURLRejected, fetchErr.Kind)
}

func TestFetch_ToolMissing(t *testing.T) {
	f := &Fetcher{BinaryPath: "definitely-not-a-real-binary-xyz", URLPolicy: safety.URLPolicy{AllowPrivateAddresses: true}}
	_, err := f.Fetch(context.Background(), "https://example.com/v", t.TempDir(), "")
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, KindToolMissing, fetchErr.Kind)
}

func TestFetch_SuccessParsesMetadata(t *testing.T) {
	taskDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "audio.mp3"), []byte("fake-audio"), 0o644))

	script := `cat <<'EOF'
{"title":"My Video","uploader":"Someone","duration":123.5,"_filename":"audio.mp3","webpage_url":"https://example.com/v"}
EOF
`
	bin := writeFakeDownloader(t, script)

	f := &Fetcher{BinaryPath: bin, URLPolicy: safety.URLPolicy{AllowPrivateAddresses: true}}
	result, err := f.Fetch(context.Background(), "https://example.com/v", taskDir, "")
	require.NoError(t, err)
	require.Equal(t, "My Video", result.Info.Title)
	require.Equal(t, "Someone", result.Info.Uploader)
	require.Equal(t, 123.5, result.Info.DurationSeconds)
	require.FileExists(t, result.AudioPath)
}

func TestFetch_CookieFileRemovedAfterCall(t *testing.T) {
	taskDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "audio.mp3"), []byte("x"), 0o644))

	script := `cat <<'EOF'
{"title":"T","uploader":"U","duration":1,"_filename":"audio.mp3","webpage_url":"https://example.com/v"}
EOF
`
	bin := writeFakeDownloader(t, script)
	f := &Fetcher{BinaryPath: bin, URLPolicy: safety.URLPolicy{AllowPrivateAddresses: true}}

	_, err := f.Fetch(context.Background(), "https://example.com/v", taskDir, "cookie-data")
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(taskDir, "cookies.txt"))
}

func TestFetch_ClassifiesNotFound(t *testing.T) {
	bin := writeFakeDownloader(t, "echo 'ERROR: Video unavailable' 1>&2; exit 1\n")
	f := &Fetcher{BinaryPath: bin, URLPolicy: safety.URLPolicy{AllowPrivateAddresses: true}}

	_, err := f.Fetch(context.Background(), "https://example.com/v", t.TempDir(), "")
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, KindNotFound, fetchErr.Kind)
}
