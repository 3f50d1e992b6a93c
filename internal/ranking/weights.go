package ranking

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidWeights = errors.New("ranking: invalid weights")

const weightSumTolerance = 1e-6

type Weights struct {
	PriceDiscount float64 `yaml:"price_discount" json:"price_discount"`
	Location      float64 `yaml:"location_score" json:"location_score"`
	Condition     float64 `yaml:"property_condition" json:"property_condition"`
	Legal         float64 `yaml:"legal_complexity" json:"legal_complexity"`
	Liquidity     float64 `yaml:"liquidity_potential" json:"liquidity_potential"`
}

func DefaultWeights() Weights {
	return Weights{PriceDiscount: 0.30, Location: 0.25, Condition: 0.15, Legal: 0.15, Liquidity: 0.15}
}

// Validate requires non-negative weights summing to 1.0 within 1e-6.
func (w Weights) Validate() error {
	for _, v := range []float64{w.PriceDiscount, w.Location, w.Condition, w.Legal, w.Liquidity} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: negative or non-finite weight %v", ErrInvalidWeights, v)
		}
	}
	sum := w.PriceDiscount + w.Location + w.Condition + w.Legal + w.Liquidity
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %.8f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

type weightsFile struct {
	Ranking struct {
		Weights *Weights `yaml:"weights"`
	} `yaml:"ranking"`
}

// LoadWeights reads ranking.weights from a YAML file and validates it.
func LoadWeights(path string) (Weights, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read weights file: %w", err)
	}
	var f weightsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Weights{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidWeights, path, err)
	}
	if f.Ranking.Weights == nil {
		return Weights{}, fmt.Errorf("%w: %s has no ranking.weights section", ErrInvalidWeights, path)
	}
	w := *f.Ranking.Weights
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
