// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package scorecard

import (
	"math"
	"testing"

	"github.com/pbinitiative/zendecision/pkg/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_woe_and_iv(t *testing.T) {
	assert.InDelta(t, math.Log(2), WOE(20, 10, 30, 30), 1e-12)
	assert.InDelta(t, (20.0/30-10.0/30)*math.Log(2), IV(20, 10, 30, 30), 1e-12)

	t.Run("zero counts are floored", func(t *testing.T) {
		woe := WOE(0, 10, 30, 30)
		assert.False(t, math.IsInf(woe, 0))
		assert.False(t, math.IsNaN(woe))
		assert.InDelta(t, math.Log(Epsilon/(10.0/30)), woe, 1e-12)

		assert.InDelta(t, math.Log((10.0/30)/Epsilon), WOE(10, 0, 30, 30), 1e-12)
		assert.Equal(t, 0.0, WOE(0, 0, 0, 0))
		assert.False(t, math.IsNaN(IV(0, 0, 30, 30)))
	})
}

func Test_points_formula(t *testing.T) {
	factor := 20 / math.Ln2
	offset := 600 - factor*math.Log(50)

	assert.InDelta(t, factor, Factor(20), 1e-12)
	assert.InDelta(t, offset, Offset(600, 20, 50), 1e-12)
	assert.InDelta(t, (offset+factor*0.3)*0.5, Points(0.3, 0.5, 600, 20, 50), 1e-9)
	assert.InDelta(t, 50.0, Odds(600, 600, 20, 50), 1e-9)
	assert.InDelta(t, 100.0, Odds(620, 600, 20, 50), 1e-9)
	assert.InDelta(t, 50.0/51.0, Probability(600, 600, 20, 50), 1e-12)
}

func incomeScorecard() *Scorecard {
	return &Scorecard{
		Id:        "sc-1",
		BaseScore: 600,
		Pdo:       20,
		BaseOdds:  50,
		Characteristics: []Characteristic{
			{
				Name:   "income",
				Weight: 1,
				Attributes: []Attribute{
					{Attribute: "low", MinValue: ptr.To(0.0), MaxValue: ptr.To(3000.0), Woe: ptr.To(-0.5)},
				},
			},
		},
	}
}

func Test_score_single_characteristic(t *testing.T) {
	// given
	sc := Compile(incomeScorecard())
	expectedPoints := Points(-0.5, 1, 600, 20, 50)

	// when
	res := Score(sc, map[string]any{"income": 2000})

	// then
	require.Len(t, res.Breakdown, 1)
	assert.InDelta(t, expectedPoints, res.Breakdown[0].Points, 1e-9)
	assert.Equal(t, "low", res.Breakdown[0].Attribute)
	assert.InDelta(t, 472.6959257956158, expectedPoints, 1e-9)
	assert.Equal(t, 1072.7, res.Score)
	assert.Equal(t, 1.0, res.Probability)
	assert.Empty(t, res.Unmatched)
}

func Test_score_skips_missing_and_unmatched_characteristics(t *testing.T) {
	sc := Compile(&Scorecard{
		BaseScore: 500,
		Pdo:       20,
		BaseOdds:  50,
		Characteristics: []Characteristic{
			{Name: "income", Weight: 1, Attributes: []Attribute{
				{Attribute: "low", MinValue: ptr.To(0.0), MaxValue: ptr.To(3000.0), Points: ptr.To(10.0)},
			}},
			{Name: "region", Weight: 1, Attributes: []Attribute{
				{Attribute: "north", Category: "NORTH", Points: ptr.To(5.0)},
			}},
			{Name: "age", Weight: 1, Attributes: []Attribute{
				{Attribute: "young", MinValue: ptr.To(18.0), MaxValue: ptr.To(30.0), Points: ptr.To(7.0)},
			}},
		},
	})

	res := Score(sc, map[string]any{"income": 3000, "region": "NORTH"})

	assert.Equal(t, 505.0, res.Score)
	assert.Equal(t, []string{"income", "age"}, res.Unmatched)
	require.Len(t, res.Breakdown, 1)
	assert.Equal(t, "region", res.Breakdown[0].Characteristic)
	assert.InDelta(t, Probability(505, 500, 20, 50), res.Probability, 1e-4)
}

func Test_attribute_matching(t *testing.T) {
	bin := Attribute{MinValue: ptr.To(10.0), MaxValue: ptr.To(20.0)}
	assert.True(t, bin.Matches(10))
	assert.True(t, bin.Matches("19.5"))
	assert.False(t, bin.Matches(20.0))
	assert.False(t, bin.Matches("abc"))
	assert.False(t, Attribute{MinValue: ptr.To(1.0)}.Matches(5))

	cat := Attribute{Category: "3"}
	assert.True(t, cat.Matches(3))
	assert.True(t, cat.Matches("3"))
	assert.False(t, cat.Matches(3.0))
}

func Test_compile_fills_statistics_and_defaults(t *testing.T) {
	// given
	sc := &Scorecard{
		Characteristics: []Characteristic{
			{Name: "x", Weight: 2, Attributes: []Attribute{
				{Attribute: "a", GoodCount: 20, BadCount: 10},
				{Attribute: "b", GoodCount: 10, BadCount: 20},
			}},
		},
	}

	// when
	c := Compile(sc)

	// then
	assert.Equal(t, float64(DefaultBaseScore), c.BaseScore)
	a := c.Characteristics[0].Attributes[0]
	require.NotNil(t, a.Woe)
	assert.InDelta(t, math.Log(2), *a.Woe, 1e-12)
	require.NotNil(t, a.Points)
	assert.InDelta(t, Points(math.Log(2), 2, 600, 20, 50), *a.Points, 1e-9)
	assert.InDelta(t, 2*(1.0/3)*math.Log(2), c.Characteristics[0].InformationValue(), 1e-12)
	assert.Nil(t, sc.Characteristics[0].Attributes[0].Woe, "source is not modified")
}

func Test_equal_width_bins(t *testing.T) {
	bins := EqualWidthBins([]float64{0, 5, 10}, 2)

	require.Len(t, bins, 2)
	assert.Equal(t, "Bin 1", bins[0].Attribute)
	assert.Equal(t, 0.0, *bins[0].MinValue)
	assert.Equal(t, 5.0, *bins[0].MaxValue)
	assert.True(t, bins[1].Matches(10))
	assert.False(t, bins[0].Matches(5))

	assert.Len(t, EqualWidthBins([]float64{3, 3}, 4), 1)
	assert.Nil(t, EqualWidthBins(nil, 4))
}

func Test_equal_frequency_bins(t *testing.T) {
	bins := EqualFrequencyBins([]float64{8, 1, 2, 3, 4, 5, 6, 7}, 4)

	require.Len(t, bins, 4)
	assert.Equal(t, 1.0, *bins[0].MinValue)
	assert.Equal(t, 3.0, *bins[0].MaxValue)
	assert.True(t, bins[3].Matches(8))

	t.Run("duplicate boundaries merge", func(t *testing.T) {
		bins := EqualFrequencyBins([]float64{1, 1, 1, 1, 2, 3}, 3)
		require.Len(t, bins, 2)
		assert.Equal(t, 1.0, *bins[0].MinValue)
		assert.Equal(t, 2.0, *bins[0].MaxValue)
	})
}

func Test_auto_bin_woe(t *testing.T) {
	// given
	rows := []map[string]any{
		{"income": 1000, "default": 0},
		{"income": 1500, "default": 0},
		{"income": 2000, "default": 1},
		{"income": 4000, "default": 1},
		{"income": 5000, "default": 1},
		{"income": 6000, "default": 1},
		{"income": 7000, "default": "n/a"},
	}

	// when
	bins := AutoBinWOE(rows, "income", "default", 2)

	// then
	require.Len(t, bins, 2)
	assert.Equal(t, 1, bins[0].GoodCount)
	assert.Equal(t, 2, bins[0].BadCount)
	assert.Equal(t, 3, bins[1].GoodCount)
	assert.Equal(t, 0, bins[1].BadCount)
	assert.InDelta(t, math.Log((1.0/4)/(2.0/2)), *bins[0].Woe, 1e-12)
	assert.InDelta(t, math.Log((3.0/4)/Epsilon), *bins[1].Woe, 1e-12)
	require.NotNil(t, bins[1].Iv)
}
