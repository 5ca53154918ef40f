package metric

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(fields map[string]any) ecodevices.Snapshot {
	return ecodevices.NewSnapshot(fields, time.Now())
}

func TestMonotonicZeroIsUnavailable(t *testing.T) {
	spec := Spec{Id: "total", Kind: KindMonotonic, Fields: []string{"T1_BASE"}, ZeroGuard: true}

	for _, raw := range []any{json.Number("0"), 0.0, "000000000", -5.0} {
		value, err := Derive(spec, snapshotOf(map[string]any{"T1_BASE": raw}))
		require.NoError(t, err)
		assert.False(t, value.Available, "raw %v", raw)
		assert.True(t, value.Guarded)
	}
}

func TestMonotonicPositivePassesThrough(t *testing.T) {
	spec := Spec{Id: "total", Kind: KindMonotonic, Fields: []string{"T1_BASE"}, ZeroGuard: true}

	for _, raw := range []float64{1, 123456, 0.5} {
		value, err := Derive(spec, snapshotOf(map[string]any{"T1_BASE": raw}))
		require.NoError(t, err)
		assert.True(t, value.Available)
		assert.Equal(t, raw, value.Number)
	}

	spec.Divider = 1000
	value, err := Derive(spec, snapshotOf(map[string]any{"T1_BASE": 123456.0}))
	require.NoError(t, err)
	assert.InDelta(t, 123.456, value.Number, 1e-9)
}

func TestAggregatedSum(t *testing.T) {
	spec := Spec{Id: "sum", Kind: KindAggregatedMonotonic, Fields: []string{"a", "b"}, ZeroGuard: true}

	value, err := Derive(spec, snapshotOf(map[string]any{"a": 3.0, "b": 4.0}))
	require.NoError(t, err)
	assert.True(t, value.Available)
	assert.Equal(t, 7.0, value.Number)

	value, err = Derive(spec, snapshotOf(map[string]any{"a": 0.0, "b": 0.0}))
	require.NoError(t, err)
	assert.False(t, value.Available)
	assert.True(t, value.Guarded)

	// the guard applies to the sum, not to each component
	value, err = Derive(spec, snapshotOf(map[string]any{"a": 0.0, "b": 4.0}))
	require.NoError(t, err)
	assert.True(t, value.Available)
	assert.Equal(t, 4.0, value.Number)
}

func TestDividerFactor(t *testing.T) {
	spec := Spec{Id: "meter", Kind: KindScaledCounter, Fields: []string{"raw"}, Divider: 1000}
	value, err := Derive(spec, snapshotOf(map[string]any{"raw": json.Number("2500")}))
	require.NoError(t, err)
	assert.Equal(t, 2.5, value.Number)

	spec.Divider = 0
	value, err = Derive(spec, snapshotOf(map[string]any{"raw": json.Number("2500")}))
	require.NoError(t, err)
	assert.Equal(t, 2500.0, value.Number)
}

func TestInstantaneousZeroIsValid(t *testing.T) {
	spec := Spec{Id: "power", Kind: KindInstantaneous, Fields: []string{"T1_PAPP"}}
	value, err := Derive(spec, snapshotOf(map[string]any{"T1_PAPP": json.Number("0")}))
	require.NoError(t, err)
	assert.True(t, value.Available)
	assert.Equal(t, 0.0, value.Number)
}

func TestEnumeratedMapping(t *testing.T) {
	spec := colorSpec("t1_ptec", "Teleinfo 1 Tempo Couleur", "T1", "T1_PTEC")

	tests := []struct {
		code  any
		value string
		name  string
	}{
		{"HPJB", "blue", "Bleu"},
		{"HCJW", "white", "Blanc"},
		{"HPJR", "red", "Rouge"},
		{"TH..", "unknown", "inconnu"},
		{"", "unknown", "inconnu"},
	}
	for _, tt := range tests {
		value, err := Derive(spec, snapshotOf(map[string]any{"T1_PTEC": tt.code}))
		require.NoError(t, err)
		assert.Equal(t, ValueText, value.Type)
		assert.Equal(t, tt.value, value.Text, "code %v", tt.code)
		assert.Equal(t, tt.name, value.Attributes["name"])
	}

	// a missing code is reported as unknown, never as an error
	value, err := Derive(spec, snapshotOf(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "unknown", value.Text)

	assert.Equal(t, []string{"blue", "white", "red", "unknown"}, spec.Options())
}

func TestFlag(t *testing.T) {
	spec := Spec{Id: "hc", Kind: KindFlag, Fields: []string{"T1_PTEC"}, Prefix: "HC"}
	assert.Equal(t, COMPONENT_BINARY_SENSOR, spec.Component())

	value, err := Derive(spec, snapshotOf(map[string]any{"T1_PTEC": "HC.."}))
	require.NoError(t, err)
	assert.True(t, value.Available)
	assert.True(t, value.Bool)

	value, err = Derive(spec, snapshotOf(map[string]any{"T1_PTEC": "HPJB"}))
	require.NoError(t, err)
	assert.False(t, value.Bool)

	value, err = Derive(spec, snapshotOf(map[string]any{"T1_PTEC": ""}))
	require.NoError(t, err)
	assert.False(t, value.Available)

	_, err = Derive(spec, snapshotOf(map[string]any{}))
	assert.True(t, IsMissingData(err))
}

func TestMissingData(t *testing.T) {
	spec := Spec{Id: "sum", Kind: KindAggregatedMonotonic, Fields: []string{"a", "b"}, ZeroGuard: true}
	value, err := Derive(spec, snapshotOf(map[string]any{"a": 1.0}))
	require.Error(t, err)
	assert.False(t, value.Available)

	var missing *MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"b"}, missing.Fields)
	assert.Contains(t, err.Error(), "data not received")
}

func TestInvalidValue(t *testing.T) {
	spec := Spec{Id: "power", Kind: KindInstantaneous, Fields: []string{"p"}}
	_, err := Derive(spec, snapshotOf(map[string]any{"p": "n/a"}))
	var invalid *InvalidValueError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "p", invalid.Field)
	assert.False(t, IsMissingData(err))
}

func TestAttributes(t *testing.T) {
	spec := Spec{
		Id:     "c1",
		Kind:   KindScaledCounter,
		Fields: []string{"meter2"},
		Attributes: []Attribute{
			{Name: "total", Field: "count0"},
			{Name: "fuel", Field: "c0_fuel"},
		},
	}
	value, err := Derive(spec, snapshotOf(map[string]any{"meter2": 12.0, "count0": json.Number("123456")}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": json.Number("123456")}, value.Attributes)
}
