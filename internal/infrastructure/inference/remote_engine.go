package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"avatarcast/internal/core/domain"
	"avatarcast/internal/core/ports"
	"avatarcast/pkg/tracing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RemoteEngine talks to the model sidecar over HTTP/JSON. Prepared avatar bundles
// are written by the sidecar under BundleDir and read back from disk.
type RemoteEngine struct {
	endpoint  string
	bundleDir string
	client    *http.Client
	logger    *zap.SugaredLogger
}

var (
	_ ports.InferenceEngine      = (*RemoteEngine)(nil)
	_ ports.AvatarPreparer       = (*RemoteEngine)(nil)
	_ ports.AnswerSynthesizer    = (*RemoteEngine)(nil)
	_ ports.NarrationSynthesizer = (*RemoteEngine)(nil)
)

func NewRemoteEngine(endpoint, bundleDir string, timeout time.Duration, logger *zap.SugaredLogger) *RemoteEngine {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &RemoteEngine{
		endpoint:  strings.TrimRight(endpoint, "/"),
		bundleDir: bundleDir,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type remoteError struct {
	Error string `json:"error"`
}

func (e *RemoteEngine) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var re remoteError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&re)
		if re.Error == "" {
			re.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, re.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Ping checks that the sidecar answers.
func (e *RemoteEngine) Ping(ctx context.Context) error {
	return e.call(ctx, http.MethodGet, "/health", nil, nil)
}

func (e *RemoteEngine) Load(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "inference.load")
	defer span.End()
	if err := e.call(ctx, http.MethodPost, "/v1/models/load", struct{}{}, nil); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (e *RemoteEngine) ExtractFeatures(ctx context.Context, audioPath string, fps int) ([]domain.AudioFeature, error) {
	ctx, span := tracing.StartSpan(ctx, "inference.features")
	defer span.End()

	abs, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("audio artifact: %w", err)
	}

	var resp struct {
		Features []domain.AudioFeature `json:"features"`
	}
	req := map[string]any{"audio_path": abs, "fps": fps}
	if err := e.call(ctx, http.MethodPost, "/v1/audio/features", req, &resp); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return resp.Features, nil
}

func (e *RemoteEngine) Infer(ctx context.Context, features []domain.AudioFeature, latents []domain.Latent) ([]image.Image, error) {
	var resp struct {
		Frames []string `json:"frames"`
	}
	req := map[string]any{"features": features, "latents": latents}
	if err := e.call(ctx, http.MethodPost, "/v1/infer", req, &resp); err != nil {
		return nil, err
	}

	faces := make([]image.Image, len(resp.Frames))
	for i, enc := range resp.Frames {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		faces[i] = img
	}
	return faces, nil
}

// Prepare asks the sidecar to build the bundle unless it is already on disk and
// no preparation was requested, then loads it.
func (e *RemoteEngine) Prepare(ctx context.Context, req domain.PrepareRequest) (*domain.PreparedAvatar, error) {
	dir := filepath.Join(e.bundleDir, req.AvatarID)

	_, statErr := os.Stat(filepath.Join(dir, "coords.json"))
	if req.NeedsPreparation || statErr != nil {
		var resp struct {
			BundleDir string `json:"bundle_dir"`
		}
		body := map[string]any{
			"avatar_id":  req.AvatarID,
			"video_path": req.SourcePath,
			"bbox_shift": req.BBoxShift,
			"output_dir": dir,
		}
		e.logger.Infow("preparing avatar", "avatar_id", req.AvatarID, "source", req.SourcePath)
		if err := e.call(ctx, http.MethodPost, "/v1/avatars/prepare", body, &resp); err != nil {
			return nil, err
		}
		if resp.BundleDir != "" {
			dir = resp.BundleDir
		}
	}

	return LoadBundle(ctx, req.AvatarID, dir)
}

// SynthesizeAnswer asks the sidecar to script and voice an answer, returning the audio path.
func (e *RemoteEngine) SynthesizeAnswer(ctx context.Context, question string, session *domain.LiveSession) (string, error) {
	var resp struct {
		AudioPath string `json:"audio_path"`
	}
	body := map[string]any{"question": question}
	if session != nil {
		body["session_id"] = session.ID
		body["session_title"] = session.Title
	}
	if err := e.call(ctx, http.MethodPost, "/v1/answers", body, &resp); err != nil {
		return "", err
	}
	if resp.AudioPath == "" {
		return "", domain.ErrNoAudioArtifact
	}
	return resp.AudioPath, nil
}

// NarrateProduct asks the sidecar for a product script and its voiced audio.
func (e *RemoteEngine) NarrateProduct(ctx context.Context, product *domain.Product, session *domain.LiveSession) (string, string, error) {
	var resp struct {
		Script    string `json:"script"`
		AudioPath string `json:"audio_path"`
	}
	body := map[string]any{
		"product_id":  product.ID,
		"name":        product.Name,
		"description": product.Description,
		"price":       product.Price,
		"category":    product.Category,
	}
	if session != nil {
		body["session_id"] = session.ID
		body["session_title"] = session.Title
	}
	if err := e.call(ctx, http.MethodPost, "/v1/narrations", body, &resp); err != nil {
		return "", "", err
	}
	if resp.AudioPath == "" {
		return resp.Script, "", domain.ErrNoAudioArtifact
	}
	return resp.Script, resp.AudioPath, nil
}

type box [4]int

func (b box) rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// LoadBundle reads a prepared avatar from dir:
//
//	full_imgs/%08d.png   source frames
//	mask/%08d.png        blend masks
//	coords.json          face boxes [x1,y1,x2,y2]
//	mask_coords.json     mask crop boxes
//	latents.json         per-frame latents
func LoadBundle(ctx context.Context, avatarID, dir string) (*domain.PreparedAvatar, error) {
	var coords, maskCoords []box
	if err := readJSON(filepath.Join(dir, "coords.json"), &coords); err != nil {
		return nil, fmt.Errorf("failed to read coords: %w", err)
	}
	if err := readJSON(filepath.Join(dir, "mask_coords.json"), &maskCoords); err != nil {
		return nil, fmt.Errorf("failed to read mask coords: %w", err)
	}
	var latents []domain.Latent
	if err := readJSON(filepath.Join(dir, "latents.json"), &latents); err != nil {
		return nil, fmt.Errorf("failed to read latents: %w", err)
	}
	n := len(coords)
	if n == 0 || len(maskCoords) != n {
		return nil, fmt.Errorf("bundle %s: %d coords, %d mask coords", dir, n, len(maskCoords))
	}

	bundle := &domain.PreparedAvatar{
		AvatarID:  avatarID,
		Frames:    make([]image.Image, n),
		Coords:    make([]image.Rectangle, n),
		Masks:     make([]image.Image, n),
		MaskBoxes: make([]image.Rectangle, n),
		Latents:   latents,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := 0; i < n; i++ {
		bundle.Coords[i] = coords[i].rect()
		bundle.MaskBoxes[i] = maskCoords[i].rect()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name := fmt.Sprintf("%08d.png", i)
			frame, err := imaging.Open(filepath.Join(dir, "full_imgs", name))
			if err != nil {
				return fmt.Errorf("frame %s: %w", name, err)
			}
			mask, err := imaging.Open(filepath.Join(dir, "mask", name))
			if err != nil {
				return fmt.Errorf("mask %s: %w", name, err)
			}
			bundle.Frames[i] = frame
			bundle.Masks[i] = AlphaMask(mask)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundle, nil
}
