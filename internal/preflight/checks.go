package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sys/unix"

	"clipgif/internal/config"
	"clipgif/internal/deps"
)

var (
	virtualMemory = mem.VirtualMemoryWithContext
	diskUsage     = disk.UsageWithContext
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for cfg. The ffmpeg
// binary decodes source frames and, for the ffmpeg backend, renders the GIF.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	ffmpegDesc := "Required for frame decoding"
	if cfg.Encoder.Backend == config.BackendFFmpeg {
		ffmpegDesc = "Required for frame decoding and GIF encoding"
	}
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: ffmpegDesc,
		},
		{
			Name:        "FFprobe",
			Command:     deps.ResolveFFprobe(cfg.FFprobeBinary(), cfg.FFmpegBinary()),
			Description: "Required for media inspection",
		},
	}
	return deps.CheckBinaries(requirements)
}

// EstimateMemory is the RGBA footprint of every snapshot held until render.
func EstimateMemory(clip Clip) uint64 {
	if clip.Frames <= 0 || clip.Width <= 0 || clip.Height <= 0 {
		return 0
	}
	return uint64(clip.Frames) * uint64(clip.Width) * uint64(clip.Height) * 4
}

// EstimateOutput is a loose upper bound on the rendered GIF: one byte per
// pixel per frame.
func EstimateOutput(clip Clip) uint64 {
	return EstimateMemory(clip) / 4
}

// CheckMemory warns when need exceeds the memory currently available.
func CheckMemory(ctx context.Context, need uint64) Result {
	const name = "Memory"
	vm, err := virtualMemory(ctx)
	if err != nil {
		return Result{Name: name, Warning: true, Detail: fmt.Sprintf("unavailable (%v)", err)}
	}
	detail := fmt.Sprintf("need ~%s, available %s", humanize.IBytes(need), humanize.IBytes(vm.Available))
	if need > vm.Available {
		return Result{Name: name, Warning: true, Detail: detail + " (capture may swap)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDiskSpace warns when the output filesystem has less than need free.
func CheckDiskSpace(ctx context.Context, dir string, need uint64) Result {
	const name = "Disk space"
	usage, err := diskUsage(ctx, dir)
	if err != nil {
		return Result{Name: name, Warning: true, Detail: fmt.Sprintf("unavailable (%v)", err)}
	}
	detail := fmt.Sprintf("need ~%s, free %s on %s", humanize.IBytes(need), humanize.IBytes(usage.Free), dir)
	if need > usage.Free {
		return Result{Name: name, Warning: true, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
