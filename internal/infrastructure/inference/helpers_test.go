package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"avatarcast/internal/core/domain"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func fullMask(w, h int) *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	return m
}

// testAvatar builds an n-frame 8x8 avatar with a 4x4 face box and a full-frame mask.
func testAvatar(id string, n int) *domain.PreparedAvatar {
	a := &domain.PreparedAvatar{AvatarID: id}
	for i := 0; i < n; i++ {
		a.Frames = append(a.Frames, solid(8, 8, color.RGBA{R: 0xff, A: 0xff}))
		a.Coords = append(a.Coords, image.Rect(2, 2, 6, 6))
		a.Masks = append(a.Masks, fullMask(8, 8))
		a.MaskBoxes = append(a.MaskBoxes, image.Rect(0, 0, 8, 8))
		a.Latents = append(a.Latents, json.RawMessage(strconv.Quote(id)))
	}
	return a
}

type fakePreparer struct {
	calls atomic.Int32
	delay time.Duration
	fail  bool
}

func (p *fakePreparer) Prepare(ctx context.Context, req domain.PrepareRequest) (*domain.PreparedAvatar, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail {
		return nil, errors.New("face detector crashed")
	}
	return testAvatar(req.AvatarID, 3), nil
}

type fakeEngine struct {
	mu         sync.Mutex
	loadErr    error
	loadCalls  int
	frames     int
	inferErrAt int
	batchSizes []int
	latents    []string
	// block, when set, holds every Infer call until it is closed.
	block   chan struct{}
	entered atomic.Int32
}

func (e *fakeEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadCalls++
	return e.loadErr
}

func (e *fakeEngine) ExtractFeatures(ctx context.Context, audioPath string, fps int) ([]domain.AudioFeature, error) {
	out := make([]domain.AudioFeature, e.frames)
	for i := range out {
		out[i] = json.RawMessage(`[1]`)
	}
	return out, nil
}

func (e *fakeEngine) Infer(ctx context.Context, features []domain.AudioFeature, latents []domain.Latent) ([]image.Image, error) {
	e.entered.Add(1)
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	e.batchSizes = append(e.batchSizes, len(features))
	for _, l := range latents {
		e.latents = append(e.latents, string(l))
	}
	calls := len(e.batchSizes)
	e.mu.Unlock()

	if e.inferErrAt > 0 && calls == e.inferErrAt {
		return nil, errors.New("cuda out of memory")
	}
	faces := make([]image.Image, len(features))
	for i := range faces {
		faces[i] = solid(2, 2, color.RGBA{B: 0xff, A: 0xff})
	}
	return faces, nil
}
