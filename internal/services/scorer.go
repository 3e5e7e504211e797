package services

import (
	"errors"
	"math"
	"sync"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

var (
	ErrNotFitted                = errors.New("risk scorer has not been fitted")
	ErrInsufficientTrainingData = errors.New("no dataset records available for training")
)

const featureCount = 8

// RiskScorer is a standardized logistic-regression classifier over the eight
// historical features. Training is deterministic (fixed initialization,
// learning rate and epoch count), so repeated fits over the same records
// produce identical scores.
type RiskScorer struct {
	mu sync.RWMutex

	log *logger.Logger

	fitted  bool
	weights [featureCount]float64
	bias    float64
	means   [featureCount]float64
	stds    [featureCount]float64
}

const (
	scorerLearningRate = 0.1
	scorerEpochs       = 400
)

func NewRiskScorer(log *logger.Logger) *RiskScorer {
	return &RiskScorer{log: log.With("service", "RiskScorer")}
}

func featureVector(r *types.HealthRecord) [featureCount]float64 {
	return [featureCount]float64{
		float64(r.Pregnancies),
		float64(r.Glucose),
		float64(r.BloodPressure),
		float64(r.SkinThickness),
		float64(r.Insulin),
		r.BMI,
		r.DiabetesPedigree,
		float64(r.Age),
	}
}

// Fit trains on DATASET-sourced records with a known outcome. Everything
// else in the snapshot is ignored.
func (s *RiskScorer) Fit(records []*types.HealthRecord) error {
	var features [][featureCount]float64
	var labels []float64
	for _, r := range records {
		if r.Source != types.SourceDataset || r.Outcome == nil {
			continue
		}
		features = append(features, featureVector(r))
		if *r.Outcome {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}
	if len(features) == 0 {
		return ErrInsufficientTrainingData
	}

	n := float64(len(features))

	var means, stds [featureCount]float64
	for _, f := range features {
		for j := range f {
			means[j] += f[j]
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, f := range features {
		for j := range f {
			d := f[j] - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}

	scaled := make([][featureCount]float64, len(features))
	for i, f := range features {
		for j := range f {
			scaled[i][j] = (f[j] - means[j]) / stds[j]
		}
	}

	var weights [featureCount]float64
	var bias float64
	for epoch := 0; epoch < scorerEpochs; epoch++ {
		var gradW [featureCount]float64
		var gradB float64
		for i, x := range scaled {
			z := bias
			for j := range x {
				z += weights[j] * x[j]
			}
			err := sigmoid(z) - labels[i]
			for j := range x {
				gradW[j] += err * x[j]
			}
			gradB += err
		}
		for j := range weights {
			weights[j] -= scorerLearningRate * gradW[j] / n
		}
		bias -= scorerLearningRate * gradB / n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = weights
	s.bias = bias
	s.means = means
	s.stds = stds
	s.fitted = true
	s.log.Info("Risk scorer fitted", "training_rows", len(features))
	return nil
}

// Score returns the predicted probability of a positive outcome in [0,1].
func (s *RiskScorer) Score(record *types.HealthRecord) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fitted {
		return 0, ErrNotFitted
	}

	x := featureVector(record)
	z := s.bias
	for j := range x {
		z += s.weights[j] * (x[j] - s.means[j]) / s.stds[j]
	}
	return sigmoid(z), nil
}

func (s *RiskScorer) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// RiskLevelForScore maps a probability to the coarse label. Boundaries are
// inclusive on the upper side: 0.3 is already "medium", 0.7 already "high".
func RiskLevelForScore(score float64) string {
	switch {
	case score < 0.3:
		return "low"
	case score < 0.7:
		return "medium"
	default:
		return "high"
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
