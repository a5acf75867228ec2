package media

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"avatarcast/pkg/logger"
	"avatarcast/pkg/optimize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackedPixels_TightFrameIsNotCopied(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	pool := optimize.NewBytePool(4 * 2 * 4)

	pix, pooled := packedPixels(img, pool)
	assert.False(t, pooled)
	assert.Len(t, pix, 32)
	assert.Same(t, &img.Pix[0], &pix[0])
}

func TestPackedPixels_SubImageDropsPadding(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(2, 2, color.RGBA{R: 40, G: 50, B: 60, A: 255})
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)
	pool := optimize.NewBytePool(2 * 2 * 4)

	pix, pooled := packedPixels(sub, pool)
	require.True(t, pooled)
	require.Len(t, pix, 16)
	assert.Equal(t, []byte{10, 20, 30, 255}, pix[0:4])
	assert.Equal(t, []byte{40, 50, 60, 255}, pix[12:16])
	pool.Put(pix)
}

func TestPCMUEncoder(t *testing.T) {
	var enc PCMUEncoder

	_, err := enc.Encode(nil)
	assert.Error(t, err)

	out, err := enc.Encode(make([]int16, 160))
	require.NoError(t, err)
	assert.Len(t, out, 160)

	out, err = enc.Encode([]int16{0, 1000, -1000, 32767})
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.NotEqual(t, out[1], out[2])
}

func TestFFmpegVP8Encoder_TimeoutRestartsProcess(t *testing.T) {
	count := filepath.Join(t.TempDir(), "starts")
	t.Setenv("AVATARCAST_FAKE_FFMPEG_COUNT", count)
	bin := fakeBinary(t, `echo x >> "$AVATARCAST_FAKE_FFMPEG_COUNT"; exec cat >/dev/null`)

	enc := NewFFmpegVP8Encoder(FFmpegVP8Config{Binary: bin, FPS: 25, FrameTimeout: 50 * time.Millisecond}, logger.NewNop())
	defer enc.Close()
	frame := image.NewRGBA(image.Rect(0, 0, 4, 2))

	_, err := enc.Encode(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	enc.mu.Lock()
	assert.Nil(t, enc.cmd)
	enc.mu.Unlock()

	_, err = enc.Encode(frame)
	require.Error(t, err)

	raw, err := os.ReadFile(count)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(string(raw)), 2)
}
