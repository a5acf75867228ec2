package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/optimize"

	"go.uber.org/zap"
)

var ErrNoFramesRendered = errors.New("no frames rendered")

// FFmpegFileRenderer muxes generated frames and the voiced audio into an MP4 file.
type FFmpegFileRenderer struct {
	binary string
	logger *zap.SugaredLogger
}

func NewFFmpegFileRenderer(binary string, logger *zap.SugaredLogger) *FFmpegFileRenderer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegFileRenderer{binary: binary, logger: logger}
}

func (r *FFmpegFileRenderer) NewWriter(outputPath, audioPath string, fps int) (ports.VideoWriter, error) {
	if outputPath == "" {
		return nil, errors.New("empty output path")
	}
	if fps <= 0 {
		fps = 25
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FFmpegFileWriter{
		binary: r.binary,
		output: outputPath,
		audio:  audioPath,
		fps:    fps,
		logger: r.logger.With("output", outputPath),
	}, nil
}

// FFmpegFileWriter is a lossless FrameSink: every TryPut writes the frame to
// ffmpeg before returning. The process starts on the first frame, which fixes
// the output size.
type FFmpegFileWriter struct {
	binary string
	output string
	audio  string
	fps    int
	logger *zap.SugaredLogger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	size   image.Point
	pool   *optimize.BytePool
	frames int
	err    error
	closed bool
}

func (w *FFmpegFileWriter) buildArgs(size image.Point) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", size.X, size.Y),
		"-r", strconv.Itoa(w.fps),
		"-i", "pipe:0",
	}
	if w.audio != "" {
		args = append(args, "-i", w.audio, "-map", "0:v", "-map", "1:a", "-c:a", "aac", "-shortest")
	}
	// libx264 with yuv420p needs even dimensions.
	return append(args,
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		w.output,
	)
}

func (w *FFmpegFileWriter) start(size image.Point) error {
	cmd := exec.Command(w.binary, w.buildArgs(size)...)
	cmd.Stderr = &w.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open renderer stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	w.cmd = cmd
	w.stdin = stdin
	w.size = size
	w.pool = optimize.NewBytePool(size.X * size.Y * 4)
	w.logger.Debugw("video render started", "width", size.X, "height", size.Y, "fps", w.fps)
	return nil
}

// TryPut ignores timeout. A failed write poisons the writer and Close reports it.
func (w *FFmpegFileWriter) TryPut(item domain.QueueItem[domain.VideoFrame], timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.err != nil {
		return false
	}
	frame := item.Payload
	if frame == nil {
		return false
	}

	size := frame.Bounds().Size()
	if w.cmd == nil {
		if err := w.start(size); err != nil {
			w.err = err
			return false
		}
	}
	if size != w.size {
		w.err = fmt.Errorf("frame %d is %v, render started at %v", item.Seq, size, w.size)
		return false
	}

	pix, pooled := packedPixels(frame, w.pool)
	_, err := w.stdin.Write(pix)
	if pooled {
		w.pool.Put(pix)
	}
	if err != nil {
		w.err = fmt.Errorf("failed to write frame %d: %w", item.Seq, err)
		return false
	}
	w.frames++
	return true
}

// Closed reports a writer that no longer accepts frames, so producers stop early.
func (w *FFmpegFileWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed || w.err != nil
}

// Close waits for ffmpeg to finish the file. A failed render leaves no output behind.
func (w *FFmpegFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.cmd == nil {
		if w.err == nil {
			w.err = ErrNoFramesRendered
		}
		return w.err
	}

	_ = w.stdin.Close()
	if err := w.cmd.Wait(); err != nil && w.err == nil {
		w.err = fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(w.stderr.String()))
	}
	if w.err != nil {
		_ = os.Remove(w.output)
		return w.err
	}
	w.logger.Infow("video rendered", "frames", w.frames)
	return nil
}
