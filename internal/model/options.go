package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ModelProfile is the whisper model size requested from the STT service.
type ModelProfile string

const (
	ProfileTiny    ModelProfile = "tiny"
	ProfileBase    ModelProfile = "base"
	ProfileSmall   ModelProfile = "small"
	ProfileMedium  ModelProfile = "medium"
	ProfileLargeV3 ModelProfile = "large-v3"

	DefaultModelProfile = ProfileSmall
)

// ErrUnknownModelProfile is returned for names outside the fixed profile set.
var ErrUnknownModelProfile = errors.New("unknown model profile")

// ModelProfiles lists the accepted profiles from smallest to largest.
func ModelProfiles() []ModelProfile {
	return []ModelProfile{ProfileTiny, ProfileBase, ProfileSmall, ProfileMedium, ProfileLargeV3}
}

// ParseModelProfile validates a profile name, case-insensitively.
func ParseModelProfile(raw string) (ModelProfile, error) {
	name := ModelProfile(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range ModelProfiles() {
		if p == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModelProfile, raw)
}

// NormalizeLanguage maps "auto" and blank input to "" (auto-detect).
func NormalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") || strings.EqualFold(lang, "none") {
		return ""
	}
	return strings.ToLower(lang)
}

// CoerceSeconds parses an edited time field. Anything that is not a finite
// number becomes 0 instead of being rejected.
func CoerceSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return Finite(v)
}

// Finite returns v, or 0 when v is NaN or infinite.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
