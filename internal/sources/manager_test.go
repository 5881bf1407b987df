package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name   string
	weight float64
	units  []Unit
	qErr   error
	hbErr  error
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Version() string { return "test" }
func (f *fakeSource) Weight() float64 { return f.weight }
func (f *fakeSource) Query(ctx context.Context, shape orb.Geometry, geolevelID int64) ([]Unit, error) {
	return f.units, f.qErr
}
func (f *fakeSource) Heartbeat(ctx context.Context) error { return f.hbErr }

func TestQueryPrefersHighestWeight(t *testing.T) {
	m := NewManager()
	m.Register(&fakeSource{name: "low", weight: 2, units: []Unit{{ID: 1}}})
	m.Register(&fakeSource{name: "high", weight: 8, units: []Unit{{ID: 2}}})

	units, src, err := m.Query(context.Background(), orb.Point{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "high", src)
	require.Len(t, units, 1)
	assert.Equal(t, int64(2), units[0].ID)
}

func TestQueryFallsBackOnError(t *testing.T) {
	m := NewManager()
	m.Register(&fakeSource{name: "broken", weight: 9, qErr: errors.New("boom")})
	m.Register(&fakeSource{name: "ok", weight: 3, units: []Unit{{ID: 7}}})

	units, src, err := m.Query(context.Background(), orb.Point{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", src)
	assert.Equal(t, int64(7), units[0].ID)
}

func TestQueryNoSources(t *testing.T) {
	m := NewManager()
	_, _, err := m.Query(context.Background(), orb.Point{0, 0}, 1)
	assert.ErrorIs(t, err, ErrNoHealthySource)
}

func TestHeartbeatEvictsUnhealthy(t *testing.T) {
	m := NewManager()
	bad := &fakeSource{name: "bad", weight: 9, hbErr: errors.New("down")}
	m.Register(bad)
	m.Register(&fakeSource{name: "good", weight: 1, units: []Unit{{ID: 5}}})

	m.doHeartbeat(context.Background())
	hs := m.HealthySources()
	require.Len(t, hs, 1)
	assert.Equal(t, "good", hs[0].Name())

	// 恢复后重新纳入
	bad.hbErr = nil
	m.doHeartbeat(context.Background())
	assert.Len(t, m.HealthySources(), 2)
}
