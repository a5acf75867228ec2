package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"avatarcast/pkg/optimize"

	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/zaf/g711"
	"go.uber.org/zap"
)

// VideoEncoder turns one composited frame into one VP8 payload.
type VideoEncoder interface {
	Encode(frame *image.RGBA) ([]byte, error)
	Close() error
}

// AudioEncoder turns one PCM chunk into one codec payload.
type AudioEncoder interface {
	Encode(pcm []int16) ([]byte, error)
}

var ErrEncoderClosed = errors.New("encoder closed")

// FFmpegVP8Config drives the ffmpeg child process.
type FFmpegVP8Config struct {
	Binary      string
	FPS         int
	BitrateKbps int
	// FrameTimeout bounds the wait for one encoded frame.
	FrameTimeout time.Duration
}

type ivfFrame struct {
	data []byte
	err  error
}

// FFmpegVP8Encoder pipes raw RGBA frames into ffmpeg and reads VP8 frames back
// out of its IVF stream. The process starts on the first frame and restarts when
// the frame size changes.
type FFmpegVP8Encoder struct {
	cfg    FFmpegVP8Config
	logger *zap.SugaredLogger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan ivfFrame
	size   image.Point
	// pool backs the repacking of frames whose stride carries padding.
	pool   *optimize.BytePool
	closed bool
}

func NewFFmpegVP8Encoder(cfg FFmpegVP8Config, logger *zap.SugaredLogger) *FFmpegVP8Encoder {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = 1500
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 2 * time.Second
	}
	return &FFmpegVP8Encoder{cfg: cfg, logger: logger}
}

func (e *FFmpegVP8Encoder) buildArgs(w, h int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.Itoa(e.cfg.FPS),
		"-i", "pipe:0",
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-lag-in-frames", "0",
		"-b:v", fmt.Sprintf("%dk", e.cfg.BitrateKbps),
		"-g", strconv.Itoa(e.cfg.FPS * 2),
		"-pix_fmt", "yuv420p",
		"-flush_packets", "1",
		"-f", "ivf",
		"pipe:1",
	}
}

func (e *FFmpegVP8Encoder) start(size image.Point) error {
	cmd := exec.Command(e.cfg.Binary, e.buildArgs(size.X, size.Y)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	frames := make(chan ivfFrame, 4)
	go readIVF(stdout, frames)

	e.cmd = cmd
	e.stdin = stdin
	e.frames = frames
	e.size = size
	if e.pool == nil || e.pool.Size() != size.X*size.Y*4 {
		e.pool = optimize.NewBytePool(size.X * size.Y * 4)
	}
	e.logger.Debugw("VP8 encoder started", "width", size.X, "height", size.Y, "fps", e.cfg.FPS)
	return nil
}

// readIVF parses the header lazily since ffmpeg only writes it after the first frame.
func readIVF(r io.Reader, out chan<- ivfFrame) {
	defer close(out)
	reader, _, err := ivfreader.NewWith(r)
	if err != nil {
		out <- ivfFrame{err: fmt.Errorf("failed to read IVF header: %w", err)}
		return
	}
	for {
		payload, _, err := reader.ParseNextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				out <- ivfFrame{err: err}
			}
			return
		}
		out <- ivfFrame{data: payload}
	}
}

// stopLocked ends the ffmpeg process and discards frames still in flight.
// kill skips the graceful flush, for a process that stopped answering.
func (e *FFmpegVP8Encoder) stopLocked(kill bool) {
	if e.cmd == nil {
		return
	}
	_ = e.stdin.Close()
	if kill {
		_ = e.cmd.Process.Kill()
	}
	for range e.frames {
	}
	if err := e.cmd.Wait(); err != nil {
		e.logger.Debugw("ffmpeg exited", "error", err)
	}
	e.cmd = nil
	e.stdin = nil
	e.frames = nil
}

func (e *FFmpegVP8Encoder) Encode(frame *image.RGBA) ([]byte, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEncoderClosed
	}

	size := frame.Bounds().Size()
	if e.cmd != nil && size != e.size {
		e.stopLocked(false)
	}
	if e.cmd == nil {
		if err := e.start(size); err != nil {
			return nil, err
		}
	}

	pix, pooled := packedPixels(frame, e.pool)
	_, err := e.stdin.Write(pix)
	if pooled {
		e.pool.Put(pix)
	}
	if err != nil {
		e.stopLocked(true)
		return nil, fmt.Errorf("failed to write frame: %w", err)
	}

	timer := time.NewTimer(e.cfg.FrameTimeout)
	defer timer.Stop()
	select {
	case f, ok := <-e.frames:
		if !ok {
			e.stopLocked(false)
			return nil, errors.New("encoder exited")
		}
		if f.err != nil {
			e.stopLocked(true)
			return nil, f.err
		}
		return f.data, nil
	case <-timer.C:
		// The late frame would answer the next write; restart on a clean process instead.
		e.stopLocked(true)
		return nil, errors.New("timed out waiting for encoded frame")
	}
}

func (e *FFmpegVP8Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.stopLocked(false)
	return nil
}

// packedPixels returns the frame pixels without row padding. Tightly packed
// frames are returned in place; otherwise the rows are copied into a buffer from
// pool and pooled reports that it must be handed back.
func packedPixels(img *image.RGBA, pool *optimize.BytePool) (pix []byte, pooled bool) {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*b.Dy()], false
	}
	out := pool.Get()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		copy(out[(y-b.Min.Y)*rowLen:], img.Pix[off:off+rowLen])
	}
	return out, true
}

// PCMUEncoder encodes 16-bit PCM as G.711 mu-law.
type PCMUEncoder struct{}

func (PCMUEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("empty audio chunk")
	}
	lpcm := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(lpcm[i*2:], uint16(s))
	}
	return g711.EncodeUlaw(lpcm), nil
}
