package services

import (
	"fmt"
	"sort"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// AgeGroup is one decade bucket of the age histogram; AgeRange is
// "30-39" style with an inclusive lower bound at the decade.
type AgeGroup struct {
	AgeRange     string  `json:"age_range"`
	Count        int     `json:"count"`
	DiabetesRate float64 `json:"diabetes_rate"`
}

type BMICategory struct {
	Category     string  `json:"category"`
	Count        int     `json:"count"`
	DiabetesRate float64 `json:"diabetes_rate"`
}

// InsightsResult carries the fixed-bucket breakdowns plus the accumulated
// risk notes. AgeRisk/BMIRisk list every range over its threshold, in range
// order.
type InsightsResult struct {
	AgeGroups     []AgeGroup    `json:"age_groups"`
	BMICategories []BMICategory `json:"bmi_categories"`
	AgeRisk       []string      `json:"age_risk"`
	BMIRisk       []string      `json:"bmi_risk"`
}

const (
	ageRiskRateThreshold = 0.5
	bmiRiskRateThreshold = 0.4
)

type namedAgeRange struct {
	label  string
	minAge int
	maxAge int // inclusive; -1 means unbounded
}

var namedAgeRanges = []namedAgeRange{
	{"0-30", 0, 30},
	{"31-50", 31, 50},
	{"51-70", 51, 70},
	{"70+", 71, -1},
}

type bmiRange struct {
	label  string
	minBMI float64
	maxBMI float64 // exclusive; -1 means unbounded
}

var bmiRanges = []bmiRange{
	{"Underweight", 0, 18.5},
	{"Normal", 18.5, 25},
	{"Overweight", 25, 30},
	{"Obese", 30, -1},
}

type InsightsService struct {
	log *logger.Logger
}

func NewInsightsService(log *logger.Logger) *InsightsService {
	return &InsightsService{log: log.With("service", "InsightsService")}
}

func (s *InsightsService) BuildInsights(records []*types.HealthRecord) InsightsResult {
	return InsightsResult{
		AgeGroups:     s.AgeHistogram(records),
		BMICategories: s.BMIBreakdown(records),
		AgeRisk:       s.AgeRiskNotes(records),
		BMIRisk:       s.BMIRiskNotes(records),
	}
}

// AgeHistogram buckets records by decade (floor(age/10)*10) and reports
// count and positive percentage per observed decade, ascending.
func (s *InsightsService) AgeHistogram(records []*types.HealthRecord) []AgeGroup {
	counts := map[int]int{}
	positives := map[int]int{}
	for _, r := range records {
		decade := (r.Age / 10) * 10
		counts[decade]++
		if r.Positive() {
			positives[decade]++
		}
	}

	decades := make([]int, 0, len(counts))
	for d := range counts {
		decades = append(decades, d)
	}
	sort.Ints(decades)

	groups := make([]AgeGroup, 0, len(decades))
	for _, d := range decades {
		groups = append(groups, AgeGroup{
			AgeRange:     fmt.Sprintf("%d-%d", d, d+9),
			Count:        counts[d],
			DiabetesRate: Round2(float64(positives[d]) / float64(counts[d]) * 100),
		})
	}
	return groups
}

func (s *InsightsService) BMIBreakdown(records []*types.HealthRecord) []BMICategory {
	categories := make([]BMICategory, 0, len(bmiRanges))
	for _, br := range bmiRanges {
		var count, positive int
		for _, r := range records {
			if !br.contains(r.BMI) {
				continue
			}
			count++
			if r.Positive() {
				positive++
			}
		}
		if count == 0 {
			continue
		}
		categories = append(categories, BMICategory{
			Category:     br.label,
			Count:        count,
			DiabetesRate: Round2(float64(positive) / float64(count) * 100),
		})
	}
	return categories
}

// AgeRiskNotes returns a note for every non-empty named range whose positive
// fraction exceeds 0.5, in range order.
func (s *InsightsService) AgeRiskNotes(records []*types.HealthRecord) []string {
	notes := []string{}
	for _, ar := range namedAgeRanges {
		var count, positive int
		for _, r := range records {
			if !ar.contains(r.Age) {
				continue
			}
			count++
			if r.Positive() {
				positive++
			}
		}
		if count == 0 {
			continue
		}
		if float64(positive)/float64(count) > ageRiskRateThreshold {
			notes = append(notes, fmt.Sprintf("High risk in age group %s", ar.label))
		}
	}
	return notes
}

func (s *InsightsService) BMIRiskNotes(records []*types.HealthRecord) []string {
	notes := []string{}
	for _, br := range bmiRanges {
		var count, positive int
		for _, r := range records {
			if !br.contains(r.BMI) {
				continue
			}
			count++
			if r.Positive() {
				positive++
			}
		}
		if count == 0 {
			continue
		}
		if float64(positive)/float64(count) > bmiRiskRateThreshold {
			notes = append(notes, fmt.Sprintf("High risk in %s category", br.label))
		}
	}
	return notes
}

func (ar namedAgeRange) contains(age int) bool {
	if age < ar.minAge {
		return false
	}
	return ar.maxAge < 0 || age <= ar.maxAge
}

func (br bmiRange) contains(bmi float64) bool {
	if bmi < br.minBMI {
		return false
	}
	return br.maxBMI < 0 || bmi < br.maxBMI
}
