package services

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// KPIs are the headline aggregates over a record snapshot. Rates are
// percentages rounded to two decimals; everything is zero for an empty
// snapshot, which is not an error.
type KPIs struct {
	TotalRecords    int     `json:"total_records"`
	PositiveCases   int     `json:"positive_cases"`
	PositiveRate    float64 `json:"positive_rate"`
	AverageGlucose  float64 `json:"average_glucose"`
	AverageBMI      float64 `json:"average_bmi"`
	AverageAge      float64 `json:"average_age"`
	HighGlucoseRate float64 `json:"high_glucose_rate"`
	ObesityRate     float64 `json:"obesity_rate"`
}

// Outlier is one value outside the IQR fence for a field.
type Outlier struct {
	Value     float64   `json:"value"`
	RecordID  uuid.UUID `json:"record_id"`
	Deviation float64   `json:"deviation"`
}

const (
	highGlucoseThreshold = 140
	obesityBMIThreshold  = 30
	iqrFenceFactor       = 1.5
	// Quartiles over fewer than this many values are degenerate; no
	// outliers are reported for such fields.
	minOutlierSamples = 4
)

type StatsService struct {
	log *logger.Logger
}

func NewStatsService(log *logger.Logger) *StatsService {
	return &StatsService{log: log.With("service", "StatsService")}
}

func (s *StatsService) CalculateKPIs(records []*types.HealthRecord) KPIs {
	total := len(records)
	if total == 0 {
		return KPIs{}
	}

	var positive, highGlucose, highBMI int
	var sumGlucose, sumBMI, sumAge float64
	for _, r := range records {
		if r.Positive() {
			positive++
		}
		if r.Glucose > highGlucoseThreshold {
			highGlucose++
		}
		if r.BMI > obesityBMIThreshold {
			highBMI++
		}
		sumGlucose += float64(r.Glucose)
		sumBMI += r.BMI
		sumAge += float64(r.Age)
	}

	n := float64(total)
	return KPIs{
		TotalRecords:    total,
		PositiveCases:   positive,
		PositiveRate:    Round2(float64(positive) / n * 100),
		AverageGlucose:  Round2(sumGlucose / n),
		AverageBMI:      Round2(sumBMI / n),
		AverageAge:      Round2(sumAge / n),
		HighGlucoseRate: Round2(float64(highGlucose) / n * 100),
		ObesityRate:     Round2(float64(highBMI) / n * 100),
	}
}

// DetectOutliers fences each numeric field independently at
// [Q1-1.5*IQR, Q3+1.5*IQR]. Deviation is against the field mean.
func (s *StatsService) DetectOutliers(records []*types.HealthRecord) map[string][]Outlier {
	fields := map[string]func(*types.HealthRecord) float64{
		"glucose": func(r *types.HealthRecord) float64 { return float64(r.Glucose) },
		"bmi":     func(r *types.HealthRecord) float64 { return r.BMI },
		"age":     func(r *types.HealthRecord) float64 { return float64(r.Age) },
	}

	outliers := make(map[string][]Outlier, len(fields))
	for field, valueOf := range fields {
		outliers[field] = fieldOutliers(records, valueOf)
	}
	return outliers
}

func fieldOutliers(records []*types.HealthRecord, valueOf func(*types.HealthRecord) float64) []Outlier {
	out := []Outlier{}
	if len(records) < minOutlierSamples {
		return out
	}

	values := make([]float64, len(records))
	var sum float64
	for i, r := range records {
		values[i] = valueOf(r)
		sum += values[i]
	}
	mean := sum / float64(len(values))

	q1 := Percentile(values, 25)
	q3 := Percentile(values, 75)
	iqr := q3 - q1
	lower := q1 - iqrFenceFactor*iqr
	upper := q3 + iqrFenceFactor*iqr

	for i, r := range records {
		if values[i] < lower || values[i] > upper {
			out = append(out, Outlier{
				Value:     values[i],
				RecordID:  r.ID,
				Deviation: values[i] - mean,
			})
		}
	}
	return out
}

// Percentile computes the p-th percentile (0-100) with linear interpolation
// between closest ranks, the same method numpy defaults to. The input is not
// modified. Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
