// FILE: enumerate.go
// Package grid – deterministic Cartesian-product coordinate enumerator.
//
// Produces an eager, deterministic sequence of coordinate maps.
// time_intervals is always the outermost loop variable so time-adjacent
// work stays together, improving the cache locality of History Store
// reads within one outer batch.
package grid

// Coordinate is one point in the grid: axis name -> label value.
type Coordinate map[string]string

// Enumerate yields the full Cartesian product of the cube's axes, in
// deterministic order, with the first axis (conventionally
// "time_intervals") varying slowest.
func Enumerate(rc *ResultCube) []Coordinate {
	axes := rc.Axes()
	total := 1
	for _, a := range axes {
		total *= len(a.Labels)
		if len(a.Labels) == 0 {
			return nil
		}
	}
	out := make([]Coordinate, 0, total)
	idx := make([]int, len(axes))
	for {
		coord := make(Coordinate, len(axes))
		for i, a := range axes {
			coord[a.Name] = a.Labels[idx[i]]
		}
		out = append(out, coord)

		pos := len(axes) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(axes[pos].Labels) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out
}

// Batches groups coordinates by their "time_intervals" axis value,
// preserving the outer-to-inner order Enumerate already produced, for
// callers that dispatch one outer batch at a time. Driver.RunGrid does
// not use it: it sends the whole grid through a single worker pool.
func Batches(coords []Coordinate) []Batch {
	var batches []Batch
	var cur *Batch
	for _, c := range coords {
		key := c["time_intervals"]
		if cur == nil || cur.TimeInterval != key {
			batches = append(batches, Batch{TimeInterval: key})
			cur = &batches[len(batches)-1]
		}
		cur.Coordinates = append(cur.Coordinates, c)
	}
	return batches
}

// Batch is every coordinate sharing one time_intervals axis value.
type Batch struct {
	TimeInterval string
	Coordinates  []Coordinate
}
