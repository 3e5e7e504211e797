package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/glyhealth/diabetes-insights-backend/internal/clients/sendgrid"
	"github.com/glyhealth/diabetes-insights-backend/internal/clients/slack"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// NotificationChannel selects the delivery channel, NOTIFICATION_CHANNEL env.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSlack NotificationChannel = "slack"
)

// NotificationService delivers analysis and assessment summaries over the
// configured channel. Delivery is best-effort: failures are logged and
// swallowed so a down mail provider never fails the pipeline that triggered
// the notification.
type NotificationService struct {
	log     *logger.Logger
	channel NotificationChannel
	email   sendgrid.Client
	slack   slack.Client
	to      []string
}

func NewNotificationService(log *logger.Logger, channel NotificationChannel, email sendgrid.Client, slackClient slack.Client) *NotificationService {
	if channel == "" {
		channel = ChannelEmail
	}

	var to []string
	for _, addr := range strings.Split(os.Getenv("NOTIFICATION_TO"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	return &NotificationService{
		log:     log.With("service", "NotificationService"),
		channel: channel,
		email:   email,
		slack:   slackClient,
		to:      to,
	}
}

var analysisEmailTmpl = template.Must(template.New("analysis").Parse(`<html><body>
<h2>Diabetes analysis complete</h2>
<p>{{.TotalRecords}} records analyzed, {{.PositiveCases}} positive cases ({{printf "%.2f" .PositiveRate}}%).</p>
<ul>
<li>Average glucose: {{printf "%.2f" .AverageGlucose}}</li>
<li>Average BMI: {{printf "%.2f" .AverageBMI}}</li>
<li>Average age: {{printf "%.2f" .AverageAge}}</li>
<li>High glucose rate: {{printf "%.2f" .HighGlucoseRate}}%</li>
<li>Obesity rate: {{printf "%.2f" .ObesityRate}}%</li>
</ul>
{{if .RiskNotes}}<h3>Risk notes</h3><ul>{{range .RiskNotes}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body></html>`))

var assessmentEmailTmpl = template.Must(template.New("assessment").Parse(`<html><body>
<h2>Health assessment for {{.Name}}</h2>
<p>Risk score {{printf "%.4f" .RiskScore}} ({{.RiskLevel}} risk).</p>
<p>{{.RiskAssessment}}</p>
{{if .Recommendations}}<h3>Recommendations</h3><ul>{{range .Recommendations}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body></html>`))

type analysisEmailData struct {
	KPIs
	RiskNotes []string
}

// NotifyAnalysisComplete reports the dataset-wide analysis outcome.
func (s *NotificationService) NotifyAnalysisComplete(ctx context.Context, kpis KPIs, insights InsightsResult) {
	notes := append(append([]string{}, insights.AgeRisk...), insights.BMIRisk...)

	switch s.channel {
	case ChannelSlack:
		text := fmt.Sprintf(
			"Diabetes analysis complete: %d records, %d positive (%.2f%%). Avg glucose %.2f, avg BMI %.2f, avg age %.2f.",
			kpis.TotalRecords, kpis.PositiveCases, kpis.PositiveRate,
			kpis.AverageGlucose, kpis.AverageBMI, kpis.AverageAge,
		)
		if len(notes) > 0 {
			text += " Risk notes: " + strings.Join(notes, "; ") + "."
		}
		s.post(ctx, text)
	default:
		var body bytes.Buffer
		if err := analysisEmailTmpl.Execute(&body, analysisEmailData{KPIs: kpis, RiskNotes: notes}); err != nil {
			s.log.Error("Failed to render analysis email", "error", err)
			return
		}
		s.send(ctx, "Diabetes analysis complete", body.String())
	}
}

type assessmentEmailData struct {
	Name            string
	RiskScore       float64
	RiskLevel       string
	RiskAssessment  string
	Recommendations []string
}

// NotifyAssessment reports one user's individual assessment result.
func (s *NotificationService) NotifyAssessment(ctx context.Context, user *types.User, assessment *types.HealthAssessment, triple RecommendationTriple) {
	name := strings.TrimSpace(user.Name + " " + user.Surname)

	switch s.channel {
	case ChannelSlack:
		s.post(ctx, fmt.Sprintf(
			"Health assessment for %s: risk score %.4f (%s risk).",
			name, assessment.RiskScore, assessment.RiskLevel,
		))
	default:
		var body bytes.Buffer
		err := assessmentEmailTmpl.Execute(&body, assessmentEmailData{
			Name:            name,
			RiskScore:       assessment.RiskScore,
			RiskLevel:       assessment.RiskLevel,
			RiskAssessment:  triple.RiskAssessment,
			Recommendations: triple.Recommendations,
		})
		if err != nil {
			s.log.Error("Failed to render assessment email", "error", err)
			return
		}
		s.send(ctx, "Your health assessment is ready", body.String(), user.Email)
	}
}

func (s *NotificationService) send(ctx context.Context, subject, html string, extraTo ...string) {
	if s.email == nil {
		s.log.Debug("Email client not configured, skipping notification")
		return
	}

	var to []sendgrid.EmailAddress
	for _, addr := range append(append([]string{}, s.to...), extraTo...) {
		to = append(to, sendgrid.EmailAddress{Email: addr})
	}
	if len(to) == 0 {
		s.log.Debug("No notification recipients configured, skipping")
		return
	}

	err := s.email.Send(ctx, sendgrid.SendEmailRequest{
		To:      to,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		s.log.Warn("Notification email failed", "error", err)
	}
}

func (s *NotificationService) post(ctx context.Context, text string) {
	if s.slack == nil {
		s.log.Debug("Slack client not configured, skipping notification")
		return
	}
	if err := s.slack.Post(ctx, text); err != nil {
		s.log.Warn("Slack notification failed", "error", err)
	}
}
