package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSpec() Spec {
	return Spec{
		Axes: []Axis{
			{Name: "time_intervals", Labels: []string{"w2", "w1"}},
			{Name: "low_cutoff", Labels: []string{"0.5", "0.1"}},
		},
		TargetMetrics: []string{"calculate_end_of_run_value"},
	}
}

func TestNewResultCube_ShapeIsProductOfAxisLengths(t *testing.T) {
	rc := NewResultCube(testSpec())
	shape := rc.Shape()
	require.Equal(t, []int{2, 2}, shape)

	flat, err := rc.Flatten("calculate_end_of_run_value")
	require.NoError(t, err)
	require.Len(t, flat, 4)
}

func TestNewResultCube_AxesSortedExceptDaysToRun(t *testing.T) {
	spec := Spec{
		Axes: []Axis{
			{Name: "low_cutoff", Labels: []string{"0.5", "0.1"}},
			{Name: "days_to_run", Labels: []string{"240h0m0s", "24h0m0s"}}, // producer order must survive
		},
		TargetMetrics: []string{"m"},
	}
	rc := NewResultCube(spec)
	for _, a := range rc.Axes() {
		switch a.Name {
		case "low_cutoff":
			require.Equal(t, []string{"0.1", "0.5"}, a.Labels)
		case "days_to_run":
			require.Equal(t, []string{"240h0m0s", "24h0m0s"}, a.Labels)
		}
	}
}

func TestWrite_UnwrittenCellsStayNaN(t *testing.T) {
	rc := NewResultCube(testSpec())
	coord := map[string]string{"time_intervals": "w1", "low_cutoff": "0.1"}
	require.NoError(t, rc.Write("calculate_end_of_run_value", coord, 1.5))

	flat, err := rc.Flatten("calculate_end_of_run_value")
	require.NoError(t, err)

	written := 0
	for _, v := range flat {
		if v == 1.5 {
			written++
			continue
		}
		require.True(t, math.IsNaN(v))
	}
	require.Equal(t, 1, written)
}

func TestWrite_UnknownAxisValueFails(t *testing.T) {
	rc := NewResultCube(testSpec())
	coord := map[string]string{"time_intervals": "nope", "low_cutoff": "0.1"}
	err := rc.Write("calculate_end_of_run_value", coord, 1.0)
	require.Error(t, err)
}

func TestWrite_UnknownMetricFails(t *testing.T) {
	rc := NewResultCube(testSpec())
	coord := map[string]string{"time_intervals": "w1", "low_cutoff": "0.1"}
	err := rc.Write("not_a_metric", coord, 1.0)
	require.Error(t, err)
}

func TestEnumerate_ProducesFullCartesianProduct(t *testing.T) {
	rc := NewResultCube(testSpec())
	coords := Enumerate(rc)
	require.Len(t, coords, 4)

	seen := map[string]bool{}
	for _, c := range coords {
		key := c["time_intervals"] + "|" + c["low_cutoff"]
		require.False(t, seen[key], "duplicate coordinate %v", c)
		seen[key] = true
	}
}

func TestEnumerate_TimeIntervalsIsOutermost(t *testing.T) {
	rc := NewResultCube(testSpec())
	coords := Enumerate(rc)
	// time_intervals must vary slowest: the first len(low_cutoff) entries
	// share the same time_intervals value.
	first := coords[0]["time_intervals"]
	for i := 0; i < 2; i++ {
		require.Equal(t, first, coords[i]["time_intervals"])
	}
	require.NotEqual(t, first, coords[2]["time_intervals"])
}

func TestBatches_GroupsByTimeInterval(t *testing.T) {
	rc := NewResultCube(testSpec())
	coords := Enumerate(rc)
	batches := Batches(coords)
	require.Len(t, batches, 2)
	for _, b := range batches {
		for _, c := range b.Coordinates {
			require.Equal(t, b.TimeInterval, c["time_intervals"])
		}
	}
}
