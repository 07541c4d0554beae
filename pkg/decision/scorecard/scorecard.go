// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package scorecard implements points based credit scorecards built on weight of evidence.
package scorecard

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pbinitiative/zendecision/pkg/ptr"
	"github.com/pbinitiative/zendecision/pkg/script/expr"
)

// Epsilon is the floor applied to good and bad rates before WOE is computed.
const Epsilon = 0.0001

const (
	DefaultBaseScore = 600
	DefaultPdo       = 20
	DefaultBaseOdds  = 50
)

type Scorecard struct {
	Id              string           `json:"id" yaml:"id"`
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	BaseScore       float64          `json:"base_score" yaml:"base_score"`
	Pdo             float64          `json:"pdo" yaml:"pdo"`
	BaseOdds        float64          `json:"base_odds" yaml:"base_odds"`
	Status          string           `json:"status,omitempty" yaml:"status,omitempty"`
	Characteristics []Characteristic `json:"characteristics" yaml:"characteristics"`
}

type Characteristic struct {
	Name       string      `json:"name" yaml:"name"`
	Weight     float64     `json:"weight" yaml:"weight"`
	Order      int         `json:"order,omitempty" yaml:"order,omitempty"`
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
}

// Attribute is one bin of a characteristic. A non-empty Category matches by string equality,
// otherwise the bin covers [MinValue, MaxValue).
type Attribute struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	MinValue  *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	Category  string   `json:"category,omitempty" yaml:"category,omitempty"`
	GoodCount int      `json:"good_count,omitempty" yaml:"good_count,omitempty"`
	BadCount  int      `json:"bad_count,omitempty" yaml:"bad_count,omitempty"`
	Woe       *float64 `json:"woe,omitempty" yaml:"woe,omitempty"`
	Iv        *float64 `json:"iv,omitempty" yaml:"iv,omitempty"`
	Points    *float64 `json:"points,omitempty" yaml:"points,omitempty"`
}

func rates(good, bad, totalGood, totalBad int) (float64, float64) {
	goodRate, badRate := Epsilon, Epsilon
	if totalGood > 0 {
		goodRate = float64(good) / float64(totalGood)
	}
	if totalBad > 0 {
		badRate = float64(bad) / float64(totalBad)
	}
	if goodRate == 0 {
		goodRate = Epsilon
	}
	if badRate == 0 {
		badRate = Epsilon
	}
	return goodRate, badRate
}

// WOE returns ln(goodRate/badRate). Zero rates are floored at Epsilon so the result is always finite.
func WOE(good, bad, totalGood, totalBad int) float64 {
	goodRate, badRate := rates(good, bad, totalGood, totalBad)
	return math.Log(goodRate / badRate)
}

// IV returns (goodRate - badRate) * WOE for one bin.
func IV(good, bad, totalGood, totalBad int) float64 {
	goodRate, badRate := rates(good, bad, totalGood, totalBad)
	return (goodRate - badRate) * math.Log(goodRate/badRate)
}

func Factor(pdo float64) float64 {
	return pdo / math.Ln2
}

func Offset(baseScore, pdo, baseOdds float64) float64 {
	return baseScore - Factor(pdo)*math.Log(baseOdds)
}

// Points converts a WOE into scorecard points for a characteristic of the given weight.
func Points(woe, weight, baseScore, pdo, baseOdds float64) float64 {
	return (Offset(baseScore, pdo, baseOdds) + Factor(pdo)*woe) * weight
}

func Odds(score, baseScore, pdo, baseOdds float64) float64 {
	return baseOdds * math.Exp((score-baseScore)/Factor(pdo))
}

func Probability(score, baseScore, pdo, baseOdds float64) float64 {
	odds := Odds(score, baseScore, pdo, baseOdds)
	return odds / (1 + odds)
}

// InformationValue sums the IV of all bins of a characteristic.
func (c Characteristic) InformationValue() float64 {
	total := 0.0
	for _, a := range c.Attributes {
		if a.Iv != nil {
			total += *a.Iv
		}
	}
	return total
}

func (sc *Scorecard) withDefaults() {
	if sc.BaseScore == 0 {
		sc.BaseScore = DefaultBaseScore
	}
	if sc.Pdo == 0 {
		sc.Pdo = DefaultPdo
	}
	if sc.BaseOdds == 0 {
		sc.BaseOdds = DefaultBaseOdds
	}
}

// Compile returns a copy of sc with defaults applied and derived bin statistics filled in:
// WOE and IV from good/bad counts when absent, then points from WOE when absent.
func Compile(sc *Scorecard) *Scorecard {
	c := *sc
	c.withDefaults()
	c.Characteristics = make([]Characteristic, len(sc.Characteristics))
	for i, ch := range sc.Characteristics {
		ch.Attributes = append([]Attribute(nil), ch.Attributes...)
		totalGood, totalBad := 0, 0
		for _, a := range ch.Attributes {
			totalGood += a.GoodCount
			totalBad += a.BadCount
		}
		for j := range ch.Attributes {
			a := &ch.Attributes[j]
			if a.Woe == nil && (a.GoodCount > 0 || a.BadCount > 0) {
				a.Woe = ptr.To(WOE(a.GoodCount, a.BadCount, totalGood, totalBad))
				a.Iv = ptr.To(IV(a.GoodCount, a.BadCount, totalGood, totalBad))
			}
			if a.Points == nil && a.Woe != nil {
				a.Points = ptr.To(Points(*a.Woe, ch.Weight, c.BaseScore, c.Pdo, c.BaseOdds))
			}
		}
		c.Characteristics[i] = ch
	}
	return &c
}

type BreakdownEntry struct {
	Characteristic string   `json:"characteristic"`
	Value          any      `json:"value"`
	Attribute      string   `json:"attribute"`
	Points         float64  `json:"points"`
	Woe            *float64 `json:"woe,omitempty"`
}

type Result struct {
	Score       float64          `json:"score"`
	Breakdown   []BreakdownEntry `json:"breakdown"`
	Unmatched   []string         `json:"unmatched,omitempty"`
	Odds        float64          `json:"odds"`
	Probability float64          `json:"probability"`
}

// Score starts from the base score and adds the points of the first matching bin of every
// characteristic. Characteristics with a missing input or no matching bin add nothing and are
// listed in Unmatched. The score is rounded to 2 decimals and the probability to 4.
func Score(sc *Scorecard, input map[string]any) Result {
	res := Result{
		Score:     sc.BaseScore,
		Breakdown: []BreakdownEntry{},
	}
	for _, ch := range sc.Characteristics {
		value, ok := input[ch.Name]
		if !ok || value == nil {
			res.Unmatched = append(res.Unmatched, ch.Name)
			continue
		}
		matched := false
		for _, a := range ch.Attributes {
			if !a.Matches(value) {
				continue
			}
			points := ptr.Deref(a.Points, 0)
			res.Score += points
			res.Breakdown = append(res.Breakdown, BreakdownEntry{
				Characteristic: ch.Name,
				Value:          value,
				Attribute:      a.Attribute,
				Points:         points,
				Woe:            a.Woe,
			})
			matched = true
			break
		}
		if !matched {
			res.Unmatched = append(res.Unmatched, ch.Name)
		}
	}
	res.Score = round(res.Score, 2)
	res.Odds = Odds(res.Score, sc.BaseScore, sc.Pdo, sc.BaseOdds)
	res.Probability = round(res.Odds/(1+res.Odds), 4)
	return res
}

// Matches reports whether value falls into the bin.
func (a Attribute) Matches(value any) bool {
	if a.Category != "" {
		return expr.Format(value) == a.Category
	}
	if a.MinValue == nil || a.MaxValue == nil {
		return false
	}
	v, ok := toNumber(value)
	if !ok {
		return false
	}
	return *a.MinValue <= v && v < *a.MaxValue
}

func round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
