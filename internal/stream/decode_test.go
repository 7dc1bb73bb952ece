package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{in: "show", want: ActionShow},
		{in: " HIDE ", want: ActionHide},
		{in: "Show", want: ActionShow},
		{in: "blink", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnrecognizedAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeKeepsDocumentOrder(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	state, err := d.Decode([]byte(`{
		"version": 1,
		"regions": {"b": "show", " c ": "hide", "A": "later", "a": "show", "D": 3},
		"remove_unlisted": true
	}`), nil)
	require.NoError(t, err)

	require.NotNil(t, state.Regions)
	assert.Equal(t, 1, state.Version)
	assert.True(t, state.Regions.RemoveUnlisted)
	assert.False(t, state.Regions.Legacy)
	assert.Equal(t, []Target{
		{ID: "B", Action: ActionShow},
		{ID: "C", Action: ActionHide},
		{ID: "A", Action: ActionShow},
	}, state.Regions.Targets)

	require.Len(t, state.Regions.Rejected, 2)
	assert.Equal(t, "A", state.Regions.Rejected[0].ID)
	assert.ErrorIs(t, state.Regions.Rejected[0].Err, ErrUnrecognizedAction)
	assert.Equal(t, "3", state.Regions.Rejected[1].Value)
	assert.True(t, state.Regions.Listed("D"))
	assert.False(t, state.Regions.Listed("E"))
	assert.Nil(t, state.Agent)
}

func TestDecodeLegacyShape(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	state, err := d.Decode([]byte(`{"region": " b "}`), nil)
	require.NoError(t, err)
	require.NotNil(t, state.Regions)
	assert.True(t, state.Regions.Legacy)
	assert.Equal(t, []Target{{ID: "B", Action: ActionShow}}, state.Regions.Targets)

	_, err = d.Decode([]byte(`{"region": "  "}`), nil)
	assert.ErrorIs(t, err, ErrParse)

	state, err = d.Decode([]byte(`{"region": "A", "regions": {"B": "show"}}`), nil)
	require.NoError(t, err)
	assert.False(t, state.Regions.Legacy, "the regions map wins over the legacy key")
}

func TestDecodeAgent(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	state, err := d.Decode([]byte(`{"uav": {"x": 12.5, "z": 150}}`), nil)
	require.NoError(t, err)
	assert.Nil(t, state.Regions)
	require.NotNil(t, state.Agent)
	assert.Equal(t, AgentPosition{X: 12.5, Z: 150, HasZ: true}, *state.Agent)

	state, err = d.Decode([]byte(`{"uav": {"x": 1, "y": 2}}`), nil)
	require.NoError(t, err)
	assert.False(t, state.Agent.HasZ)
}

func TestDecodeGeodetic(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want GeodeticFix
	}{
		{
			name: "explicit origin",
			raw:  `{"geodetic": {"lat": 24.787, "lon": 120.997, "h": 150}, "origin": {"lat": 24.786, "lon": 120.996, "h": 5}}`,
			want: GeodeticFix{Position: Geodetic{Lat: 24.787, Lon: 120.997, H: 150}, Origin: Geodetic{Lat: 24.786, Lon: 120.996, H: 5}},
		},
		{
			name: "bbox centre",
			raw:  `{"geodetic": {"lat": 24.787, "lon": 120.997}, "bbox": {"min_lat": 24.78, "max_lat": 24.79, "min_lon": 120.99, "max_lon": 121.0}}`,
			want: GeodeticFix{Position: Geodetic{Lat: 24.787, Lon: 120.997}, Origin: Geodetic{Lat: (24.78 + 24.79) / 2, Lon: (120.99 + 121.0) / 2}},
		},
		{
			name: "transmitter wins",
			raw:  `{"transmitter": {"geodetic": {"lat": 1, "lon": 2}}, "geodetic": {"lat": 3, "lon": 4}, "origin": {"lat": 0, "lon": 0}}`,
			want: GeodeticFix{Position: Geodetic{Lat: 1, Lon: 2}},
		},
		{
			name: "transmitter without geodetic",
			raw:  `{"transmitter": {"power": 20}, "geodetic": {"lat": 3, "lon": 4}, "origin": {"lat": 0, "lon": 0}}`,
			want: GeodeticFix{Position: Geodetic{Lat: 3, Lon: 4}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := d.Decode([]byte(tt.raw), nil)
			require.NoError(t, err)
			assert.Nil(t, state.Agent)
			require.NotNil(t, state.Geodetic)
			assert.Equal(t, tt.want, *state.Geodetic)
		})
	}

	state, err := d.Decode([]byte(`{"uav": {"x": 1}}`), nil)
	require.NoError(t, err)
	assert.Nil(t, state.Geodetic)
}

func TestDecodeRejectsBadShape(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	for _, raw := range []string{
		`[]`,
		`null`,
		`{"regions": ["A"]}`,
		`{"remove_unlisted": "yes"}`,
		`{"uav": {"x": "far"}}`,
		`{"regions": {"A": "show"`,
		`{"geodetic": {"lat": 24.7}, "origin": {"lat": 0, "lon": 0}}`,
		`{"geodetic": {"lat": 124.7, "lon": 0}, "origin": {"lat": 0, "lon": 0}}`,
		`{"geodetic": {"lat": 24.7, "lon": 121}}`,
		`{"geodetic": {"lat": 24.7, "lon": 121}, "bbox": {"min_lat": 24}}`,
	} {
		_, err := d.Decode([]byte(raw), nil)
		assert.ErrorIs(t, err, ErrParse, raw)
	}
}

func TestDecodeUsesPreparsedValue(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	// The pre-parsed value is what the schema sees.
	_, err = d.Decode([]byte(`{}`), map[string]any{"version": "one"})
	assert.ErrorIs(t, err, ErrParse)
}
