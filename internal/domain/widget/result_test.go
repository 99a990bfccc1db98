package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMeasurement(t *testing.T) {
	cases := []struct {
		key       string
		value     float64
		wantKey   string
		wantValue float64
	}{
		{"waist_mm", 800, "waist", 80},
		{"waist_cm", 80, "waist", 80},
		{"chest_circumference", 950, "chest_circumference", 95},
		{"shoe_size", 42, "shoe_size", 42},
		{"Inseam_MM", 760, "Inseam", 76},
	}
	for _, tc := range cases {
		gotKey, gotValue := NormalizeMeasurement(tc.key, tc.value)
		assert.Equal(t, tc.wantKey, gotKey, tc.key)
		assert.InDelta(t, tc.wantValue, gotValue, 0.001, tc.key)
	}
}

func TestNormalizeMeasurementUnitEquivalence(t *testing.T) {
	_, fromMM := NormalizeMeasurement("waist_mm", 800)
	_, fromCM := NormalizeMeasurement("waist_cm", 80)
	assert.Equal(t, FormatCm(fromMM), FormatCm(fromCM))
	assert.Equal(t, "80.0 cm", FormatCm(fromMM))
}

func TestNormalizeMeasurementsSkipsNonNumeric(t *testing.T) {
	out := NormalizeMeasurements(map[string]any{
		"waist_mm": 800.0,
		"fit":      "regular",
	})
	require.Len(t, out, 1)
	assert.InDelta(t, 80, out["waist"], 0.001)
}

func TestNormalizeResultResultsShape(t *testing.T) {
	res, err := NormalizeResult(map[string]any{
		"request_id": "req-1",
		"results": map[string]any{
			"recommendedSize": "M",
			"key_type":        "upper_body",
			"measurements": map[string]any{
				"chest_mm": 940.0,
			},
		},
		"userData": map[string]any{
			"gender": "female",
			"height": 170.0,
			"weight": 62.0,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res.RecommendedSize)
	assert.Equal(t, "M", *res.RecommendedSize)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, "upper_body", res.KeyType)
	assert.InDelta(t, 94, res.Measurements["chest"], 0.001)
	require.NotNil(t, res.UserProfile)
	assert.Equal(t, "female", res.UserProfile.Gender)
	assert.InDelta(t, 170, res.UserProfile.Height, 0.001)
}

func TestNormalizeResultSnakeCaseSize(t *testing.T) {
	res, err := NormalizeResult(map[string]any{
		"results": map[string]any{"recommended_size": "XL"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.RecommendedSize)
	assert.Equal(t, "XL", *res.RecommendedSize)
}

func TestNormalizeResultDataWrapper(t *testing.T) {
	res, err := NormalizeResult(map[string]any{
		"data": map[string]any{
			"requestId": "req-9",
			"results":   map[string]any{"recommendedSize": "S"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res.RecommendedSize)
	assert.Equal(t, "S", *res.RecommendedSize)
	assert.Equal(t, "req-9", res.RequestID)
}

func TestNormalizeResultLegacyPayloadShape(t *testing.T) {
	res, err := NormalizeResult(map[string]any{
		"payload":    map[string]any{"size": "L"},
		"request_id": "req-2",
	})
	require.NoError(t, err)
	require.NotNil(t, res.RecommendedSize)
	assert.Equal(t, "L", *res.RecommendedSize)
	assert.Equal(t, "req-2", res.RequestID)
}

func TestNormalizeResultUnrecognized(t *testing.T) {
	for name, payload := range map[string]map[string]any{
		"nil":             nil,
		"empty":           {},
		"unrelated":       {"foo": "bar"},
		"empty results":   {"results": map[string]any{}},
		"payload no size": {"payload": map[string]any{"note": "x"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeResult(payload)
			assert.ErrorIs(t, err, ErrUnrecognizedShape)
		})
	}
}

func TestNormalizeResultMeasurementsOnly(t *testing.T) {
	res, err := NormalizeResult(map[string]any{
		"results": map[string]any{
			"measurements": map[string]any{"hip_mm": 1020.0},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.RecommendedSize)
	assert.InDelta(t, 102, res.Measurements["hip"], 0.001)
}
