package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/glyhealth/diabetes-insights-backend/internal/clients/llm"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/utils"
)

// StatsSummary is the compact numeric input sent to the provider. For a
// per-record assessment, TotalRecords is 1 and the averages are the record's
// own values.
type StatsSummary struct {
	TotalRecords  int     `json:"total_records"`
	PositiveCases int     `json:"positive_cases"`
	PositiveRate  float64 `json:"positive_rate"`
	AvgGlucose    float64 `json:"avg_glucose"`
	AvgBMI        float64 `json:"avg_bmi"`
	AvgAge        float64 `json:"avg_age"`
}

// RecommendationTriple is what callers always get back, provider failure or
// not.
type RecommendationTriple struct {
	RiskAssessment     string   `json:"risk_assessment"`
	Recommendations    []string `json:"recommendations"`
	PreventiveMeasures []string `json:"preventive_measures"`
}

// TripleCache stores provider responses keyed by canonicalized summary.
type TripleCache interface {
	Get(ctx context.Context, key string) (RecommendationTriple, bool)
	Set(ctx context.Context, key string, triple RecommendationTriple)
}

type lruTripleCache struct {
	lru *utils.LRU[RecommendationTriple]
}

func NewLRUTripleCache(capacity int) TripleCache {
	return &lruTripleCache{lru: utils.NewLRU[RecommendationTriple](capacity)}
}

func (c *lruTripleCache) Get(_ context.Context, key string) (RecommendationTriple, bool) {
	return c.lru.Get(key)
}

func (c *lruTripleCache) Set(_ context.Context, key string, triple RecommendationTriple) {
	c.lru.Set(key, triple)
}

// RecommendationService wraps the text-generation provider with rate
// limiting, response caching, tolerant parsing and a degraded fallback.
type RecommendationService struct {
	log     *logger.Logger
	client  llm.Client
	cache   TripleCache
	limiter *callLimiter
	timeout time.Duration
}

func NewRecommendationService(log *logger.Logger, client llm.Client, cache TripleCache, ratePerMinute int, timeout time.Duration) *RecommendationService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RecommendationService{
		log:     log.With("service", "RecommendationService"),
		client:  client,
		cache:   cache,
		limiter: newCallLimiter(ratePerMinute),
		timeout: timeout,
	}
}

// CacheKey canonicalizes a summary into an order-independent string. Going
// through a map makes json emit the keys sorted.
func CacheKey(summary StatsSummary) string {
	raw, err := json.Marshal(map[string]any{
		"total_records":  summary.TotalRecords,
		"positive_cases": summary.PositiveCases,
		"positive_rate":  summary.PositiveRate,
		"avg_glucose":    summary.AvgGlucose,
		"avg_bmi":        summary.AvgBMI,
		"avg_age":        summary.AvgAge,
	})
	if err != nil {
		return fmt.Sprintf("%+v", summary)
	}
	return string(raw)
}

// Recommend always returns a well-formed triple. Provider errors, timeouts
// and unparsable output all resolve to the fallback; only successful parses
// are cached.
func (s *RecommendationService) Recommend(ctx context.Context, summary StatsSummary) RecommendationTriple {
	key := CacheKey(summary)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.log.Debug("Recommendation served from cache")
		return cached
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.log.Warn("Rate limit wait interrupted", "error", err)
		return FallbackTriple()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Complete(callCtx, buildPrompt(summary))
	if err != nil {
		s.log.Warn("Provider call failed, using fallback recommendations", "error", err)
		return FallbackTriple()
	}

	triple := ParseTriple(raw)
	if triple.RiskAssessment == "" && len(triple.Recommendations) == 0 && len(triple.PreventiveMeasures) == 0 {
		s.log.Warn("Provider response had no recognizable sections, using fallback")
		return FallbackTriple()
	}

	s.cache.Set(ctx, key, triple)
	return triple
}

func buildPrompt(summary StatsSummary) string {
	return fmt.Sprintf(
		"Based on the following diabetes analysis data, provide a short risk assessment, "+
			"actionable recommendations and preventive measures.\n\n"+
			"Total records: %d\n"+
			"Positive cases: %d\n"+
			"Positive rate: %.2f%%\n"+
			"Average glucose: %.2f\n"+
			"Average BMI: %.2f\n"+
			"Average age: %.2f\n\n"+
			"Answer with exactly three sections titled \"Risk Assessment\", "+
			"\"Recommendations\" and \"Preventive Measures\". Use one bullet point "+
			"per recommendation and per preventive measure.",
		summary.TotalRecords,
		summary.PositiveCases,
		summary.PositiveRate,
		summary.AvgGlucose,
		summary.AvgBMI,
		summary.AvgAge,
	)
}

// FallbackTriple is the degraded response used whenever the provider cannot
// be reached or its output cannot be parsed.
func FallbackTriple() RecommendationTriple {
	return RecommendationTriple{
		RiskAssessment: "Automatic risk assessment is temporarily unavailable. The figures below were computed, but no individualized interpretation could be generated.",
		Recommendations: []string{
			"Consult a healthcare provider to discuss these results",
			"Monitor blood glucose levels regularly",
			"Maintain regular physical activity",
		},
		PreventiveMeasures: []string{
			"Keep a balanced diet low in refined sugar",
			"Schedule routine check-ups",
		},
	}
}

// EmptySnapshotTriple is returned when there are no records to analyze.
// Nothing failed, so the wording stays neutral instead of reusing the
// degraded-provider fallback.
func EmptySnapshotTriple() RecommendationTriple {
	return RecommendationTriple{
		RiskAssessment: "No health records available to analyze yet.",
		Recommendations: []string{
			"Upload a historical dataset or add records to generate an analysis",
		},
		PreventiveMeasures: []string{},
	}
}

var (
	sectionHeaderRe = regexp.MustCompile(`(?i)^\s*#{0,4}\s*\**\s*(risk assessment|recommendations|preventive measures)\s*:?\s*\**\s*:?\s*$`)
	listMarkerRe    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
)

// ParseTriple splits free-form provider text on the three expected section
// headers. Sections may appear in any order; missing ones stay empty; list
// markers are stripped from items.
func ParseTriple(text string) RecommendationTriple {
	var triple RecommendationTriple
	section := ""

	flushLine := func(line string) {
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "" {
			return
		}
		switch section {
		case "risk assessment":
			if triple.RiskAssessment == "" {
				triple.RiskAssessment = line
			} else {
				triple.RiskAssessment += " " + line
			}
		case "recommendations":
			triple.Recommendations = append(triple.Recommendations, line)
		case "preventive measures":
			triple.PreventiveMeasures = append(triple.PreventiveMeasures, line)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := sectionHeaderRe.FindStringSubmatch(line); m != nil {
			section = strings.ToLower(m[1])
			continue
		}
		// Headers inline with their content ("Risk Assessment: elevated").
		if name, rest, ok := splitInlineHeader(line); ok {
			section = name
			flushLine(rest)
			continue
		}
		flushLine(line)
	}

	if triple.Recommendations == nil {
		triple.Recommendations = []string{}
	}
	if triple.PreventiveMeasures == nil {
		triple.PreventiveMeasures = []string{}
	}
	return triple
}

var inlineHeaderRe = regexp.MustCompile(`(?i)^\s*#{0,4}\s*\**\s*(risk assessment|recommendations|preventive measures)\s*\**\s*:\s*(.*)$`)

func splitInlineHeader(line string) (string, string, bool) {
	m := inlineHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), m[2], true
}
