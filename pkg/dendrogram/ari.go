/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package dendrogram

// AdjustedRandIndex measures agreement between two flat clusterings of the
// same points, corrected for chance. 1 is identical structure, ~0 is
// random agreement; the index can be slightly negative.
func AdjustedRandIndex(a, b []int) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	relabelDense := func(v []int) ([]int, int) {
		m := make(map[int]int)
		out := make([]int, len(v))
		for i, x := range v {
			lbl, ok := m[x]
			if !ok {
				lbl = len(m)
				m[x] = lbl
			}
			out[i] = lbl
		}
		return out, len(m)
	}
	la, ka := relabelDense(a)
	lb, kb := relabelDense(b)

	table := make([]int, ka*kb)
	rowSum := make([]int, ka)
	colSum := make([]int, kb)
	for i := range la {
		table[la[i]*kb+lb[i]]++
		rowSum[la[i]]++
		colSum[lb[i]]++
	}

	choose2 := func(n int) float64 { return float64(n) * float64(n-1) / 2 }

	var index, rowComb, colComb float64
	for _, v := range table {
		index += choose2(v)
	}
	for _, v := range rowSum {
		rowComb += choose2(v)
	}
	for _, v := range colSum {
		colComb += choose2(v)
	}

	total := choose2(len(a))
	expected := rowComb * colComb / total
	maxIndex := (rowComb + colComb) / 2
	if maxIndex == expected {
		return 1
	}
	return (index - expected) / (maxIndex - expected)
}
