// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package scorecard

import (
	"fmt"
	"math"
	"slices"

	"github.com/pbinitiative/zendecision/pkg/ptr"
)

type BinningMethod string

const (
	BinningEqualWidth     BinningMethod = "equal_width"
	BinningEqualFrequency BinningMethod = "equal_frequency"
)

// Bins splits the numeric values of column into at most n contiguous [min, max) bins. The
// upper bound of the last bin is nudged above the largest value so every observed value
// falls into exactly one bin.
func Bins(rows []map[string]any, column string, n int, method BinningMethod) []Attribute {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := toNumber(row[column]); ok {
			values = append(values, v)
		}
	}
	switch method {
	case BinningEqualWidth:
		return EqualWidthBins(values, n)
	case BinningEqualFrequency:
		return EqualFrequencyBins(values, n)
	}
	return nil
}

func EqualWidthBins(values []float64, n int) []Attribute {
	if len(values) == 0 || n <= 0 {
		return nil
	}
	lo, hi := slices.Min(values), slices.Max(values)
	width := (hi - lo) / float64(n)
	if width == 0 {
		return binsFromBounds([]float64{lo, math.Nextafter(hi, math.Inf(1))})
	}
	bounds := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		bounds = append(bounds, lo+float64(i)*width)
	}
	bounds = append(bounds, math.Nextafter(hi, math.Inf(1)))
	return binsFromBounds(bounds)
}

// EqualFrequencyBins places roughly the same number of values in every bin. Bins that would
// start at the same value are merged, so fewer than n bins come back for repetitive data.
func EqualFrequencyBins(values []float64, n int) []Attribute {
	if len(values) == 0 || n <= 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n = min(n, len(sorted))
	size := len(sorted) / n
	bounds := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		bounds = append(bounds, sorted[i*size])
	}
	bounds = slices.Compact(bounds)
	bounds = append(bounds, math.Nextafter(sorted[len(sorted)-1], math.Inf(1)))
	return binsFromBounds(bounds)
}

func binsFromBounds(bounds []float64) []Attribute {
	res := make([]Attribute, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		res = append(res, Attribute{
			Attribute: fmt.Sprintf("Bin %d", i+1),
			MinValue:  ptr.To(bounds[i]),
			MaxValue:  ptr.To(bounds[i+1]),
		})
	}
	return res
}

// AutoBinWOE bins feature by equal frequency and fills the good/bad counts, WOE and IV of every
// bin. A target value of 1 counts as good and 0 as bad; rows with any other target are ignored.
func AutoBinWOE(rows []map[string]any, feature, target string, maxBins int) []Attribute {
	bins := Bins(rows, feature, maxBins, BinningEqualFrequency)

	type observation struct {
		value float64
		good  bool
	}
	var observations []observation
	totalGood, totalBad := 0, 0
	for _, row := range rows {
		t, ok := toNumber(row[target])
		if !ok || (t != 0 && t != 1) {
			continue
		}
		if t == 1 {
			totalGood++
		} else {
			totalBad++
		}
		v, ok := toNumber(row[feature])
		if !ok {
			continue
		}
		observations = append(observations, observation{value: v, good: t == 1})
	}

	for i := range bins {
		b := &bins[i]
		for _, o := range observations {
			if *b.MinValue <= o.value && o.value < *b.MaxValue {
				if o.good {
					b.GoodCount++
				} else {
					b.BadCount++
				}
			}
		}
		b.Woe = ptr.To(WOE(b.GoodCount, b.BadCount, totalGood, totalBad))
		b.Iv = ptr.To(IV(b.GoodCount, b.BadCount, totalGood, totalBad))
	}
	return bins
}
