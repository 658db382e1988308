// Package categorize fills in missing transaction categories in batches,
// using an external text classifier restricted to a closed label set.
package categorize

import (
	"context"

	"github.com/shopspring/decimal"
)

// Classifier labels descriptions. The returned Labels are expected to line
// up one-to-one with descriptions; the engine checks that before use.
type Classifier interface {
	Classify(ctx context.Context, descriptions []string, labels []string) (*Classification, error)
}

// Classification is a classifier's answer for one batch. When the
// classifier was reached but its answer was unusable, Classify returns a
// Classification carrying only Usage together with an error.
type Classification struct {
	Labels []string
	Usage  Usage
}

// Usage is the token accounting of one classifier call.
type Usage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Pricing converts token counts to money.
type Pricing struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// Cost returns the price of u.
func (p Pricing) Cost(u Usage) decimal.Decimal {
	in := decimal.NewFromInt(u.InputTokens).Mul(p.InputPerMillion)
	out := decimal.NewFromInt(u.OutputTokens).Mul(p.OutputPerMillion)
	return in.Add(out).Div(million)
}

// ParsePricing builds a Pricing from decimal strings such as "0.30".
func ParsePricing(inputPerMillion, outputPerMillion string) (Pricing, error) {
	in, err := decimal.NewFromString(inputPerMillion)
	if err != nil {
		return Pricing{}, err
	}
	out, err := decimal.NewFromString(outputPerMillion)
	if err != nil {
		return Pricing{}, err
	}
	return Pricing{InputPerMillion: in, OutputPerMillion: out}, nil
}
