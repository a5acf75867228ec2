package validation

import (
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "viewer-1", false},
		{"uuid", "2f1c7a8e-1f0b-4c8d-9e55-0a5b3b7d9c11", false},
		{"empty", "", true},
		{"spaces", "a b", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFPS(t *testing.T) {
	for _, fps := range []int{1, 25, 60} {
		if err := ValidateFPS(fps); err != nil {
			t.Errorf("fps %d should be valid: %v", fps, err)
		}
	}
	for _, fps := range []int{0, -5, 61} {
		if err := ValidateFPS(fps); err == nil {
			t.Errorf("fps %d should be rejected", fps)
		}
	}
}

func TestValidateYouTubeVideoID(t *testing.T) {
	if err := ValidateYouTubeVideoID("dQw4w9WgXcQ"); err != nil {
		t.Errorf("expected valid id, got %v", err)
	}
	for _, id := range []string{"", "short", "dQw4w9WgXcQ!", "dQw4w9WgXcQQ"} {
		if err := ValidateYouTubeVideoID(id); err == nil {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}

func TestNormalizeTikTokUniqueID(t *testing.T) {
	got, err := NormalizeTikTokUniqueID("  @shop.live_01 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "shop.live_01" {
		t.Errorf("expected shop.live_01, got %q", got)
	}

	for _, id := range []string{"", "@", "@a", "bad name"} {
		if _, err := NormalizeTikTokUniqueID(id); err == nil {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("ws://localhost:8765/webcast"); err != nil {
		t.Errorf("expected valid ws url, got %v", err)
	}
	if err := ValidateURL("ftp://host"); err == nil {
		t.Error("expected ftp scheme to be rejected")
	}
}
