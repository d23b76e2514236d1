package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// zeroFill replaces missing samples with a constant
type zeroFill struct{}

func (zeroFill) Name() string    { return "zero_fill" }
func (zeroFill) Version() string { return "1.0.0" }

func (zeroFill) Interpolate(values, t []float64, params domain.Params) ([]float64, domain.InterpolationInfo, error) {
	fill := params.Float("value", 0)
	out := make([]float64, len(values))
	info := domain.NewInterpolationInfo(len(values))
	for i, v := range values {
		out[i] = v
		if math.IsNaN(v) {
			out[i] = fill
			info.Mark(i, "zero_fill")
		}
	}
	return out, info, nil
}

// nameOnly registers without any capability
type nameOnly struct{}

func (nameOnly) Name() string    { return "name_only" }
func (nameOnly) Version() string { return "0.0.1" }

func TestPluginDispatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	require.NoError(t, svc.Plugins().Register(zeroFill{}))
	require.NoError(t, svc.Plugins().Register(nameOnly{}))
	d := loadLineOne(t, svc)

	out, err := svc.Interpolate(ctx, d.ID, SeriesRequest{
		Series: []string{seriesTemp},
		Plugin: "zero_fill",
		Params: domain.Params{"value": -1.0},
	})
	require.NoError(t, err)
	temp := series(t, out, seriesTemp)
	assert.Equal(t, -1.0, temp.Values[1])
	assert.Equal(t, "zero_fill", temp.Info.Method[1])
	assert.Equal(t, "zero_fill", temp.Metadata["plugin"])
	assert.Equal(t, "plugin:zero_fill", out.Metadata["method"])

	_, err = svc.Interpolate(ctx, d.ID, SeriesRequest{Plugin: "name_only"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypePlugin))
	assert.ErrorIs(t, err, apperrors.ErrNotImplemented)

	_, err = svc.Synchronize(ctx, SyncRequest{Sources: []SyncSource{{DatasetID: d.ID}}, Plugin: "zero_fill"})
	assert.ErrorIs(t, err, apperrors.ErrNotImplemented)

	caps := svc.Methods().Plugins
	require.Len(t, caps, 2)
	assert.True(t, caps[0].Interpolate)
	assert.False(t, caps[0].Synchronize)
}
