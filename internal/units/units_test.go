package units

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "scadalab/internal/errors"
)

func TestConvertTemperature(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		in   []float64
		want []float64
	}{
		{"celsius to fahrenheit", "celsius", "fahrenheit", []float64{0, 100, -40}, []float64{32, 212, -40}},
		{"alias degC to kelvin", "degC", "K", []float64{0, 100}, []float64{273.15, 373.15}},
		{"degree sign", "°C", "degF", []float64{37}, []float64{98.6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeUnits(tt.in, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvertLength(t *testing.T) {
	got, err := Default().Convert([]float64{1.5, 0.001}, "km", "m")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1500, 1}, got, 1e-9)
}

func TestConvertKeepsNaNAndInput(t *testing.T) {
	in := []float64{1, math.NaN(), 3}
	got, err := NormalizeUnits(in, "celsius", "kelvin")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 276.15, got[2], 1e-9)
	assert.Equal(t, 1.0, in[0])
}

func TestConvertSameUnitCopies(t *testing.T) {
	in := []float64{1, 2}
	got, err := NormalizeUnits(in, "degC", "celsius")
	require.NoError(t, err)
	assert.Equal(t, in, got)
	got[0] = 99
	assert.Equal(t, 1.0, in[0])
}

func TestConvertErrors(t *testing.T) {
	_, err := NormalizeUnits([]float64{1}, "furlongs per fortnight squared", "meter")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrTypeConfig, appErr.Type)
	assert.Equal(t, "unknown_unit", appErr.Code)

	_, err = NormalizeUnits([]float64{1}, "", "meter")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	_, err = NormalizeUnits([]float64{1}, "celsius", "meter")
	require.Error(t, err)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "incompatible_units", appErr.Code)
	assert.ErrorIs(t, err, apperrors.ErrIncompatibleUnits)
	assert.NotEqual(t, apperrors.ErrIncompatibleUnits.Error(), appErr.Cause.Error())
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestRegistryExtraAliases(t *testing.T) {
	r := NewRegistry(map[string]string{" Deg_C ": "celsius"})
	assert.True(t, r.Known("deg_c"))
	assert.False(t, Default().Known("deg_c"))
	assert.Equal(t, "deg_c?", r.Symbol("deg_c?"))
}

func TestConvertPressure(t *testing.T) {
	tests := []struct {
		from, to string
		in, want float64
	}{
		{"kPa", "bar", 100, 1},
		{"bar", "kPa", 1, 100},
		{"bar", "Pa", 2.5, 250000},
		{"bar", "psi", 1, 14.503774},
		{"psi", "bar", 14.503774, 1},
		{"psi", "kPa", 100, 689.4757},
		{"mbar", "bar", 1013.25, 1.01325},
		{"mbar", "kPa", 10, 1},
		{"hPa", "mbar", 1, 1},
		{"atm", "bar", 1, 1.01325},
		{"atm", "kPa", 1, 101.325},
		{"mH2O", "kPa", 10, 98.0665},
		{"mmH2O", "Pa", 1, 9.80665},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			out, err := Default().Convert([]float64{tt.in, math.NaN()}, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out[0], 1e-6*math.Max(1, math.Abs(tt.want)))
			assert.True(t, math.IsNaN(out[1]))
		})
	}
}

func TestConvertPressureRoundTrip(t *testing.T) {
	in := []float64{0, 1, 4.2, -0.5}
	toPsi, err := Default().Convert(in, "bar", "psi")
	require.NoError(t, err)
	back, err := Default().Convert(toPsi, "psi", "bar")
	require.NoError(t, err)
	assert.InDeltaSlice(t, in, back, 1e-12)
}

func TestConvertBarToNonPressure(t *testing.T) {
	_, err := Default().Convert([]float64{1}, "bar", "celsius")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "incompatible_units", appErr.Code)
	assert.ErrorIs(t, err, apperrors.ErrIncompatibleUnits)
}
