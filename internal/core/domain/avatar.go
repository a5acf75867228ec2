package domain

import (
	"encoding/json"
	"fmt"
	"image"
)

// PreparedState of an avatar cache entry.
type PreparedState string

const (
	AvatarUnprepared PreparedState = "unprepared"
	AvatarPreparing  PreparedState = "preparing"
	AvatarReady      PreparedState = "ready"
	AvatarError      PreparedState = "error"
)

// AvatarKey is the avatar cache and bundle directory key for a persisted avatar.
func AvatarKey(id int64) string {
	return fmt.Sprintf("avatar_%d", id)
}

// Latent is an opaque encoded feature vector owned by the model collaborator.
type Latent = json.RawMessage

// AudioFeature is one per-frame audio feature window produced by the model collaborator.
type AudioFeature = json.RawMessage

// PreparedAvatar is the preprocessed asset bundle for one avatar.
// Frames, Coords, Masks and MaskBoxes are index-aligned.
type PreparedAvatar struct {
	AvatarID  string
	Frames    []image.Image     // full source frames
	Coords    []image.Rectangle // face box inside each frame
	Masks     []image.Image     // blend mask, sized to MaskBoxes[i]
	MaskBoxes []image.Rectangle // region of the frame the mask covers
	Latents   []Latent
}

// Len is the number of source frames in the bundle.
func (p *PreparedAvatar) Len() int {
	return len(p.Frames)
}

// Cycle returns the frame index used for output frame i: frames play forward then backward.
func (p *PreparedAvatar) Cycle(i int) int {
	n := len(p.Frames)
	if n == 0 {
		return 0
	}
	pos := i % (2 * n)
	if pos < n {
		return pos
	}
	return 2*n - 1 - pos
}

// LatentCycle returns the latent matching output frame i, following the same
// forward then backward walk as Cycle.
func (p *PreparedAvatar) LatentCycle(i int) Latent {
	n := len(p.Latents)
	if n == 0 {
		return nil
	}
	pos := i % (2 * n)
	if pos >= n {
		pos = 2*n - 1 - pos
	}
	return p.Latents[pos]
}
