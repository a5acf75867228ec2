package domain

import "image"

// QueueItem is one entry of a media queue. Seq is assigned by the producer and is
// non-decreasing; it does not drive presentation time.
type QueueItem[T any] struct {
	Seq     uint64
	Payload T
}

// VideoFrame is a composited RGBA frame ready for encoding.
type VideoFrame = *image.RGBA

// AudioSamples is signed 16-bit mono PCM at the session sample rate.
type AudioSamples = []int16

// Offer is the remote SDP offer supplied by a viewer.
type Offer struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Answer is the local SDP answer returned to the viewer.
type Answer struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// PrepareRequest asks the avatar cache to make an avatar current.
type PrepareRequest struct {
	AvatarID         string
	SourcePath       string
	BBoxShift        int
	NeedsPreparation bool
}
