package fingerprint

// The peak footprint is the unit cross iterated radius times, a diamond of
// Manhattan radius r. Both filters below apply the cross r times, which is
// exact for a diamond: dilation of a mirrored signal stays mirrored, and
// inside a rectangle every cell within Manhattan distance r is reachable
// through in-bounds steps.

// maxFilter returns the grey dilation of m by the diamond of the given radius.
// Borders are mirrored (d c b a | a b c d | d c b a); for one-cell steps that
// is the same as clamping to the edge.
func maxFilter(m [][]float64, radius int) [][]float64 {
	rows := len(m)
	if rows == 0 {
		return nil
	}
	cols := len(m[0])

	cur := make([][]float64, rows)
	next := make([][]float64, rows)
	for t := range m {
		cur[t] = append([]float64(nil), m[t]...)
		next[t] = make([]float64, cols)
	}

	for step := 0; step < radius; step++ {
		for t := 0; t < rows; t++ {
			up, down := cur[clamp(t-1, rows)], cur[clamp(t+1, rows)]
			row := cur[t]
			for f := 0; f < cols; f++ {
				v := row[f]
				if up[f] > v {
					v = up[f]
				}
				if down[f] > v {
					v = down[f]
				}
				if l := row[clamp(f-1, cols)]; l > v {
					v = l
				}
				if r := row[clamp(f+1, cols)]; r > v {
					v = r
				}
				next[t][f] = v
			}
		}
		cur, next = next, cur
	}
	return cur
}

// erode returns the binary erosion of m by the diamond of the given radius.
// Cells outside the matrix count as set.
func erode(m [][]bool, radius int) [][]bool {
	rows := len(m)
	if rows == 0 {
		return nil
	}
	cols := len(m[0])

	cur := make([][]bool, rows)
	next := make([][]bool, rows)
	for t := range m {
		cur[t] = append([]bool(nil), m[t]...)
		next[t] = make([]bool, cols)
	}

	for step := 0; step < radius; step++ {
		for t := 0; t < rows; t++ {
			row := cur[t]
			for f := 0; f < cols; f++ {
				v := row[f]
				if v && t > 0 {
					v = cur[t-1][f]
				}
				if v && t < rows-1 {
					v = cur[t+1][f]
				}
				if v && f > 0 {
					v = row[f-1]
				}
				if v && f < cols-1 {
					v = row[f+1]
				}
				next[t][f] = v
			}
		}
		cur, next = next, cur
	}
	return cur
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
