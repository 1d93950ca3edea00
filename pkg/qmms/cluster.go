package qmms

import "math"

// centroidLinkageCluster performs agglomerative clustering on a distance
// matrix using the Lance-Williams centroid-linkage update rule, stopping
// once k clusters remain (the "maxclust" criterion), and returns a 0-based
// label per point.
//
// Centroid linkage is normally defined on Euclidean point coordinates; here,
// as in scipy's linkage applied to a condensed distance matrix directly, the
// Lance-Williams recurrence is applied to the distance matrix itself:
//
//	d(i∪j, k) = (n_i*d(i,k) + n_j*d(j,k))/(n_i+n_j) - n_i*n_j*d(i,j)/(n_i+n_j)^2
func centroidLinkageCluster(d [][]float64, k int) []int {
	n := len(d)
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}

	active := make([]bool, n)
	size := make([]int, n)
	// members[c] holds the original point indices merged into cluster c.
	members := make([][]int, n)
	dist := make([][]float64, n)
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
		members[i] = []int{i}
		dist[i] = append([]float64(nil), d[i]...)
	}

	numActive := n
	for numActive > k {
		a, b, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					a, b = i, j
				}
			}
		}
		if a == -1 {
			break
		}

		ni, nj := float64(size[a]), float64(size[b])
		for c := 0; c < n; c++ {
			if !active[c] || c == a || c == b {
				continue
			}
			merged := (ni*dist[a][c] + nj*dist[b][c]) / (ni + nj)
			merged -= ni * nj * dist[a][b] / ((ni + nj) * (ni + nj))
			dist[a][c] = merged
			dist[c][a] = merged
		}

		members[a] = append(members[a], members[b]...)
		size[a] = size[a] + size[b]
		active[b] = false
		numActive--
	}

	labels := make([]int, n)
	label := 0
	for c := 0; c < n; c++ {
		if !active[c] {
			continue
		}
		for _, pt := range members[c] {
			labels[pt] = label
		}
		label++
	}
	return labels
}
