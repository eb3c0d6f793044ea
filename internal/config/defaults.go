package config

const (
	defaultConfigPath    = "~/.config/clipgif/config.toml"
	defaultLogDir        = "~/.local/share/clipgif/logs"
	defaultOutputDir     = "~/Pictures/clipgif"
	defaultHistoryDB     = "~/.local/share/clipgif/history.db"
	defaultFrameRate     = 10.0
	defaultWidth         = 480
	defaultHeight        = 270
	defaultQuality       = 5
	defaultBackend       = BackendGIF
	defaultWorkers       = 8
	defaultLoop          = 0
	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

const (
	// BackendGIF encodes frames in-process.
	BackendGIF = "gif"
	// BackendFFmpeg pipes frames into ffmpeg's palette filters.
	BackendFFmpeg = "ffmpeg"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
			HistoryDB: defaultHistoryDB,
		},
		Capture: Capture{
			FrameRate: defaultFrameRate,
			Width:     defaultWidth,
			Height:    defaultHeight,
			Quality:   defaultQuality,
		},
		Encoder: Encoder{
			Backend: defaultBackend,
			Workers: defaultWorkers,
			Loop:    defaultLoop,
		},
		Tools: Tools{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
