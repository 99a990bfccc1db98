package widget

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognizedShape is returned when a result payload matches none of the
// known raw shapes. Callers surface this as a flow error instead of probing
// further.
var ErrUnrecognizedShape = errors.New("unrecognized result payload shape")

// UserProfile carries the optional self-reported profile attached to a
// recommendation.
type UserProfile struct {
	Gender string  `json:"gender,omitempty"`
	Height float64 `json:"height,omitempty"` // cm
	Weight float64 `json:"weight,omitempty"` // kg
}

// RecommendationResult is the canonical, post-normalization result shape.
// The presenter renders exactly this, regardless of which transport or
// message version delivered the raw payload.
type RecommendationResult struct {
	RecommendedSize *string            `json:"recommendedSize"`
	Measurements    map[string]float64 `json:"measurements,omitempty"` // centimeters
	UserProfile     *UserProfile       `json:"userProfile,omitempty"`
	RequestID       string             `json:"requestId,omitempty"`
	KeyType         string             `json:"keyType,omitempty"`
}

// linearMeasureTerms mark measurement names that denote body lengths or
// circumferences; the upstream flow emits those in millimeters when the key
// carries no explicit unit suffix.
var linearMeasureTerms = []string{
	"circumference", "length", "breadth", "width", "height",
	"waist", "chest", "hip", "shoulder", "neck", "thigh", "calf",
	"ankle", "wrist", "bicep", "forearm", "pelvis", "inseam", "crotch",
}

func isLinearMeasure(name string) bool {
	for _, term := range linearMeasureTerms {
		if strings.Contains(name, term) {
			return true
		}
	}
	return false
}

// NormalizeMeasurement converts one raw measurement entry to centimeters.
// Keys ending in _mm or _cm are explicit; otherwise linear measurement names
// are assumed to be millimeters. The returned name has any unit suffix
// stripped.
func NormalizeMeasurement(key string, value float64) (string, float64) {
	lower := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(lower, "_mm"):
		return key[:len(key)-3], value / 10
	case strings.HasSuffix(lower, "_cm"):
		return key[:len(key)-3], value
	case isLinearMeasure(lower):
		return key, value / 10
	default:
		return key, value
	}
}

// NormalizeMeasurements reduces a raw measurements map to centimeters.
// Non-numeric values are skipped.
func NormalizeMeasurements(raw map[string]any) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for key, v := range raw {
		num, ok := asFloat(v)
		if !ok {
			continue
		}
		name, cm := NormalizeMeasurement(key, num)
		out[name] = cm
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FormatCm renders a normalized measurement for display.
func FormatCm(v float64) string {
	return fmt.Sprintf("%.1f cm", v)
}

// NormalizeResult reduces any of the known raw payload shapes to the
// canonical RecommendationResult:
//
//   - guided-flow recommendation: {"payload": {"size": ..., ...}}
//   - platform results:           {"results": {...}, "userData": {...}, "request_id": ...}
//   - socket session end:         {"results": {...}} or the same nested under "data"
//
// A payload matching none of these returns ErrUnrecognizedShape.
func NormalizeResult(payload map[string]any) (*RecommendationResult, error) {
	if payload == nil {
		return nil, ErrUnrecognizedShape
	}

	// Socket deliveries sometimes wrap the body one level down.
	if data, ok := asMap(payload["data"]); ok {
		if _, has := data["results"]; has {
			payload = data
		}
	}

	if results, ok := asMap(payload["results"]); ok {
		return normalizeResultsShape(payload, results)
	}

	if inner, ok := asMap(payload["payload"]); ok {
		if size, ok := asString(inner["size"]); ok && size != "" {
			return &RecommendationResult{
				RecommendedSize: &size,
				RequestID:       firstString(payload, "request_id", "requestId"),
				KeyType:         firstString(payload, "key_type", "keyType"),
			}, nil
		}
	}

	return nil, ErrUnrecognizedShape
}

func normalizeResultsShape(payload, results map[string]any) (*RecommendationResult, error) {
	res := &RecommendationResult{
		RequestID: firstString(payload, "request_id", "requestId"),
		KeyType:   firstString(results, "key_type", "keyType"),
	}
	if res.KeyType == "" {
		res.KeyType = firstString(payload, "key_type", "keyType")
	}

	if size, ok := asString(results["recommendedSize"]); ok && size != "" {
		res.RecommendedSize = &size
	} else if size, ok := asString(results["recommended_size"]); ok && size != "" {
		res.RecommendedSize = &size
	}

	if raw, ok := asMap(results["measurements"]); ok {
		res.Measurements = NormalizeMeasurements(raw)
	}

	if profile, ok := asMap(firstPresent(payload, "userData", "user_data", "userProfile")); ok {
		up := &UserProfile{}
		if gender, ok := asString(profile["gender"]); ok {
			up.Gender = gender
		}
		if height, ok := asFloat(profile["height"]); ok {
			up.Height = height
		}
		if weight, ok := asFloat(profile["weight"]); ok {
			up.Weight = weight
		}
		if *up != (UserProfile{}) {
			res.UserProfile = up
		}
	}

	if res.RecommendedSize == nil && res.Measurements == nil {
		return nil, ErrUnrecognizedShape
	}
	return res, nil
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := asString(m[key]); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
