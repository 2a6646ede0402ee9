package geofence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oversight/internal/domain"
)

var square = []domain.Point{
	{Lat: 55.750, Lng: 37.610},
	{Lat: 55.750, Lng: 37.612},
	{Lat: 55.752, Lng: 37.612},
	{Lat: 55.752, Lng: 37.610},
}

func TestDistance(t *testing.T) {
	a := domain.Point{Lat: 0, Lng: 0}
	assert.InDelta(t, 0, Distance(a, a), 1e-9)
	// One degree of latitude is about 111.19 km on a 6371 km sphere.
	assert.InDelta(t, 111195, Distance(a, domain.Point{Lat: 1, Lng: 0}), 5)
	b := domain.Point{Lat: 55.75, Lng: 37.61}
	c := domain.Point{Lat: 59.93, Lng: 30.31}
	assert.InDelta(t, Distance(b, c), Distance(c, b), 1e-6)
}

func TestCenter(t *testing.T) {
	c := Center(square)
	assert.InDelta(t, 55.751, c.Lat, 1e-9)
	assert.InDelta(t, 37.611, c.Lng, 1e-9)
	assert.Equal(t, domain.Point{}, Center(nil))
}

func TestVerify(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
		accuracy float64
		polygon  []domain.Point
		want     bool
	}{
		{"on a vertex", 55.750, 37.610, 0, square, true},
		{"at the centroid", 55.751, 37.611, 0, square, true},
		{"within buffer of a vertex", 55.7505, 37.610, 0, square, true},
		{"accuracy widens the radius", 55.7485, 37.610, 100, square, true},
		{"far away", 55.84, 37.61, 5, square, false},
		{"empty polygon", 55.750, 37.610, 1000, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Verify(tc.lat, tc.lng, tc.accuracy, tc.polygon))
		})
	}
}

func TestVerifyFarFromSinglePointIsRejected(t *testing.T) {
	polygon := []domain.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.0001}, {Lat: 0.0001, Lng: 0}}
	// roughly 10 km north
	assert.False(t, Verify(0.09, 0, 5, polygon))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains(domain.Point{Lat: 55.751, Lng: 37.611}, square))
	assert.False(t, Contains(domain.Point{Lat: 55.760, Lng: 37.611}, square))
	assert.False(t, Contains(domain.Point{Lat: 55.751, Lng: 37.611}, square[:2]))
}

func TestGuardStrategies(t *testing.T) {
	nearOutside := Position{Lat: 55.7495, Lng: 37.611}
	assert.True(t, NewGuard().Check(nearOutside, square))

	g := Guard{BufferMeters: DefaultBufferMeters, Strategy: Containment}
	assert.False(t, g.Check(nearOutside, square))
	assert.True(t, g.Check(Position{Lat: 55.751, Lng: 37.611}, square))
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	want := Position{Lat: 1, Lng: 2, Accuracy: 3}

	got, err := Acquire(ctx, Fixed(want), time.Second)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Acquire(ctx, nil, time.Second)
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	failing := PositionFunc(func(context.Context) (Position, error) {
		return Position{}, errors.New("permission denied")
	})
	_, err = Acquire(ctx, failing, time.Second)
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	stuck := PositionFunc(func(context.Context) (Position, error) {
		time.Sleep(time.Second)
		return want, nil
	})
	_, err = Acquire(ctx, stuck, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}

func TestGate(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()

	_, err := g.Gate(ctx, Fixed(Position{Lat: 55.751, Lng: 37.611, Accuracy: 10}), time.Second, square)
	require.NoError(t, err)

	pos, err := g.Gate(ctx, Fixed(Position{Lat: 56, Lng: 37.611, Accuracy: 10}), time.Second, square)
	assert.ErrorIs(t, err, ErrOutsideGeofence)
	assert.Equal(t, 56.0, pos.Lat)
}
