package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Frames     int64
	Bitrate    int64
	VideoCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
	Done    bool
}

// ProgressFunc is called once per progress block ffmpeg reports
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF         = 23
	DefaultPreset      = "medium"
	DefaultVideoCodec  = "libx264"
	DefaultPixelFormat = "yuv420p"
	// FramePattern names sampled frames so lexical order is temporal order.
	FramePattern = "frame_%04d.jpg"
)

// SampleOptions configures frame sampling
type SampleOptions struct {
	// Interval between sampled frames. Defaults to one second.
	Interval time.Duration
	// Pattern is the printf-style output file name, FramePattern by default.
	Pattern      string
	ProgressFunc ProgressFunc
}

// SlideshowOptions configures encoding a still-image sequence into a video
type SlideshowOptions struct {
	Images []string
	Output string
	// FPS is the number of images shown per second, at least 1.
	FPS          int
	ProgressFunc ProgressFunc
}
