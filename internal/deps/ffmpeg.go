package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ResolveFFprobe picks the ffprobe binary to run. An explicitly configured
// value wins; otherwise an ffprobe sitting next to the resolved ffmpeg is
// preferred so both tools come from the same build, falling back to PATH.
func ResolveFFprobe(configured, ffmpegCommand string) string {
	if v := strings.TrimSpace(configured); v != "" && v != "ffprobe" {
		return v
	}
	if resolved, err := exec.LookPath(strings.TrimSpace(ffmpegCommand)); err == nil {
		candidate := filepath.Join(filepath.Dir(resolved), executableName("ffprobe"))
		if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
			return candidate
		}
	}
	return "ffprobe"
}

// Version runs "<command> -version" and returns the first output line.
func Version(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, command, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", command, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", fmt.Errorf("%s -version: empty output", command)
}

func executableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
