package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolygon(t *testing.T) {
	pts, err := parsePolygon("55.75,37.61; 55.751,37.61;55.751,37.612;")
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, 55.751, pts[2].Lat)
	assert.Equal(t, 37.612, pts[2].Lng)

	_, err = parsePolygon("55.75")
	assert.Error(t, err)
	_, err = parsePolygon("north,37.6")
	assert.Error(t, err)
}

func TestParseWorkItem(t *testing.T) {
	item, err := parseWorkItem("w1:Paving:m2:120.5:2024-01-01:2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, "w1", item.ID)
	assert.Equal(t, "Paving", item.Name)
	assert.Equal(t, 120.5, item.Amount)
	assert.Equal(t, "2024-02-01", item.EndDate)

	item, err = parseWorkItem("w2:Lighting")
	require.NoError(t, err)
	assert.Zero(t, item.Amount)
	assert.Empty(t, item.StartDate)

	_, err = parseWorkItem("only-id")
	assert.Error(t, err)
	_, err = parseWorkItem("w3:x:m:lots")
	assert.Error(t, err)
}

func TestParseObjectYAML(t *testing.T) {
	opts, err := parseObjectYAML([]byte(`
name: Park
address: Main st. 1
polygon:
  - {lat: 55.75, lng: 37.61}
  - {lat: 55.751, lng: 37.61}
  - {lat: 55.751, lng: 37.612}
schedule:
  start_date: "2024-01-01"
  end_date: "2024-06-01"
  work_items:
    - id: w1
      name: Paving
      unit: m2
      amount: 300
`))
	require.NoError(t, err)
	assert.Equal(t, "Park", opts.Name)
	assert.Len(t, opts.Polygon, 3)
	require.NotNil(t, opts.Schedule)
	require.Len(t, opts.Schedule.WorkItems, 1)
	assert.Equal(t, 300.0, opts.Schedule.WorkItems[0].Amount)

	_, err = parseObjectYAML([]byte("polygon: nope: ["))
	assert.Error(t, err)
}
