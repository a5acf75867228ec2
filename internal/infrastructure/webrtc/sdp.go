package webrtc

import (
	"fmt"
	"strings"

	"avatarcast/internal/core/domain"
	"avatarcast/pkg/validation"

	"github.com/pion/sdp/v3"
)

const offerType = "offer"

// NormalizeOffer fills the default offer type and rejects anything the transport
// cannot answer, before any session state is touched.
func NormalizeOffer(sessionID string, offer domain.Offer) (domain.Offer, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return offer, fmt.Errorf("%w: %v", domain.ErrInvalidOffer, err)
	}
	offer.Type = strings.ToLower(strings.TrimSpace(offer.Type))
	if offer.Type == "" {
		offer.Type = offerType
	}
	if offer.Type != offerType {
		return offer, fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidOffer, offer.Type)
	}
	if strings.TrimSpace(offer.SDP) == "" {
		return offer, fmt.Errorf("%w: missing sdp", domain.ErrInvalidOffer)
	}
	if err := ValidateOffer(offer.SDP); err != nil {
		return offer, err
	}
	return offer, nil
}

// ValidateOffer parses raw and requires at least one video section the viewer can receive on.
func ValidateOffer(raw string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidOffer, err)
	}

	sessionDir := direction(desc.Attribute)
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "video" || md.MediaName.Port.Value == 0 {
			continue
		}
		dir := direction(md.Attribute)
		if dir == "" {
			dir = sessionDir
		}
		if dir != "sendonly" && dir != "inactive" {
			return nil
		}
	}
	return fmt.Errorf("%w: no receivable video section", domain.ErrInvalidOffer)
}

func direction(lookup func(string) (string, bool)) string {
	for _, d := range []string{"sendrecv", "recvonly", "sendonly", "inactive"} {
		if _, ok := lookup(d); ok {
			return d
		}
	}
	return ""
}
