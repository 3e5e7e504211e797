package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/glyhealth/diabetes-insights-backend/internal/services"
)

type AnalysisHandler struct {
	analysis *services.AnalysisService
}

func NewAnalysisHandler(analysis *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

// Analyze serves GET /analyze: snapshot KPIs, per-field anomalies and the
// interpreted recommendation sections, flattened into one payload.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	result, err := h.analysis.Run(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"total_records":       result.KPIs.TotalRecords,
		"positive_cases":      result.KPIs.PositiveCases,
		"positive_rate":       result.KPIs.PositiveRate,
		"average_glucose":     result.KPIs.AverageGlucose,
		"average_bmi":         result.KPIs.AverageBMI,
		"average_age":         result.KPIs.AverageAge,
		"high_glucose_rate":   result.KPIs.HighGlucoseRate,
		"obesity_rate":        result.KPIs.ObesityRate,
		"anomalies":           result.Outliers,
		"risk_assessment":     result.Recommendations.RiskAssessment,
		"recommendations":     result.Recommendations.Recommendations,
		"preventive_measures": result.Recommendations.PreventiveMeasures,
	})
}

// Insights serves GET /insights from the SQL rollups.
func (h *AnalysisHandler) Insights(c *gin.Context) {
	result, err := h.analysis.InsightsFromSQL(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}
