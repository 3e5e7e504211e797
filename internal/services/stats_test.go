package services

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func boolPtr(b bool) *bool { return &b }

func makeRecord(glucose int, bmi float64, age int, outcome bool) *types.HealthRecord {
	return &types.HealthRecord{
		ID:      uuid.New(),
		Glucose: glucose,
		BMI:     bmi,
		Age:     age,
		Outcome: boolPtr(outcome),
		Source:  types.SourceDataset,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateKPIs(t *testing.T) {
	svc := NewStatsService(testLogger(t))
	records := []*types.HealthRecord{
		makeRecord(148, 33.6, 50, true),
		makeRecord(85, 26.6, 31, false),
		makeRecord(183, 23.3, 32, true),
	}

	kpis := svc.CalculateKPIs(records)
	if kpis.TotalRecords != 3 {
		t.Fatalf("total records: want=3 got=%d", kpis.TotalRecords)
	}
	if kpis.PositiveCases != 2 {
		t.Fatalf("positive cases: want=2 got=%d", kpis.PositiveCases)
	}
	if !almostEqual(kpis.PositiveRate, 66.67) {
		t.Fatalf("positive rate: want=66.67 got=%v", kpis.PositiveRate)
	}
	if !almostEqual(kpis.AverageGlucose, 138.67) {
		t.Fatalf("average glucose: want=138.67 got=%v", kpis.AverageGlucose)
	}
	if !almostEqual(kpis.AverageBMI, 27.83) {
		t.Fatalf("average bmi: want=27.83 got=%v", kpis.AverageBMI)
	}
	if !almostEqual(kpis.AverageAge, 37.67) {
		t.Fatalf("average age: want=37.67 got=%v", kpis.AverageAge)
	}
	// 148 and 183 are above 140; only 33.6 is above 30.
	if !almostEqual(kpis.HighGlucoseRate, 66.67) {
		t.Fatalf("high glucose rate: want=66.67 got=%v", kpis.HighGlucoseRate)
	}
	if !almostEqual(kpis.ObesityRate, 33.33) {
		t.Fatalf("obesity rate: want=33.33 got=%v", kpis.ObesityRate)
	}
}

func TestCalculateKPIsEmptySnapshot(t *testing.T) {
	svc := NewStatsService(testLogger(t))
	kpis := svc.CalculateKPIs(nil)
	if kpis != (KPIs{}) {
		t.Fatalf("empty snapshot KPIs: want zero value got=%+v", kpis)
	}
}

func TestCalculateKPIsThresholdsAreExclusive(t *testing.T) {
	svc := NewStatsService(testLogger(t))
	// Exactly at the thresholds: neither counts.
	records := []*types.HealthRecord{makeRecord(140, 30.0, 40, false)}
	kpis := svc.CalculateKPIs(records)
	if kpis.HighGlucoseRate != 0 {
		t.Fatalf("glucose of exactly 140 counted as high: got=%v", kpis.HighGlucoseRate)
	}
	if kpis.ObesityRate != 0 {
		t.Fatalf("bmi of exactly 30 counted as obese: got=%v", kpis.ObesityRate)
	}
}

func TestDetectOutliers(t *testing.T) {
	svc := NewStatsService(testLogger(t))
	glucose := []int{85, 89, 90, 92, 95, 99, 300}
	records := make([]*types.HealthRecord, 0, len(glucose))
	for _, g := range glucose {
		// Constant bmi and age so only glucose can produce outliers.
		records = append(records, makeRecord(g, 25.0, 40, false))
	}

	outliers := svc.DetectOutliers(records)
	for _, field := range []string{"glucose", "bmi", "age"} {
		if _, ok := outliers[field]; !ok {
			t.Fatalf("missing outlier field %q", field)
		}
	}

	if got := len(outliers["glucose"]); got != 1 {
		t.Fatalf("glucose outliers: want=1 got=%d (%+v)", got, outliers["glucose"])
	}
	out := outliers["glucose"][0]
	if out.Value != 300 {
		t.Fatalf("outlier value: want=300 got=%v", out.Value)
	}
	if out.RecordID != records[len(records)-1].ID {
		t.Fatalf("outlier record id: want=%s got=%s", records[len(records)-1].ID, out.RecordID)
	}
	wantDeviation := 300 - 850.0/7
	if !almostEqual(out.Deviation, wantDeviation) {
		t.Fatalf("outlier deviation: want=%v got=%v", wantDeviation, out.Deviation)
	}

	if len(outliers["bmi"]) != 0 || len(outliers["age"]) != 0 {
		t.Fatalf("constant fields produced outliers: bmi=%d age=%d", len(outliers["bmi"]), len(outliers["age"]))
	}
}

func TestDetectOutliersTooFewSamples(t *testing.T) {
	svc := NewStatsService(testLogger(t))
	records := []*types.HealthRecord{
		makeRecord(85, 20, 30, false),
		makeRecord(90, 22, 35, false),
		makeRecord(5000, 99, 120, true),
	}

	outliers := svc.DetectOutliers(records)
	for field, list := range outliers {
		if len(list) != 0 {
			t.Fatalf("field %q: want no outliers below the sample floor, got=%d", field, len(list))
		}
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	if got := Percentile(values, 50); !almostEqual(got, 2.5) {
		t.Fatalf("p50: want=2.5 got=%v", got)
	}
	if got := Percentile(values, 25); !almostEqual(got, 1.75) {
		t.Fatalf("p25: want=1.75 got=%v", got)
	}
	if got := Percentile(values, 100); !almostEqual(got, 4) {
		t.Fatalf("p100: want=4 got=%v", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty: want=0 got=%v", got)
	}
	if got := Percentile([]float64{7}, 90); got != 7 {
		t.Fatalf("single: want=7 got=%v", got)
	}
	// Input must stay untouched.
	unsorted := []float64{3, 1, 2}
	_ = Percentile(unsorted, 50)
	if unsorted[0] != 3 || unsorted[1] != 1 || unsorted[2] != 2 {
		t.Fatalf("input was mutated: %v", unsorted)
	}
}
