package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
)

const (
	reportPageSize     = 200
	reportTopComponent = 5
)

// WeeklyReport summarises pipeline outcomes for one period.
type WeeklyReport struct {
	From                 time.Time                   `json:"from"`
	To                   time.Time                   `json:"to"`
	TotalTickets         int                         `json:"total_tickets"`
	Accepted             int                         `json:"accepted"`
	Escalated            int                         `json:"escalated"`
	Cancelled            int                         `json:"cancelled"`
	Halted               int                         `json:"halted"`
	InFlight             int                         `json:"in_flight"`
	AutoResolved         int                         `json:"auto_resolved"`
	AutoResolutionRate   float64                     `json:"auto_resolution_rate"`
	EscalationRate       float64                     `json:"escalation_rate"`
	AverageAttempts      float64                     `json:"average_attempts"`
	AvgAcceptedConf      float64                     `json:"average_accepted_confidence"`
	FeedbackSignals      int                         `json:"feedback_signals"`
	FeedbackPositiveRate float64                     `json:"feedback_positive_rate"`
	TopComponents        []repository.ComponentCount `json:"top_components"`
}

// KBGap is a component with recurring tickets and no knowledge-base coverage.
type KBGap struct {
	Component string `json:"component"`
	Tickets   int    `json:"tickets"`
}

// AnalyticsService derives reports from the audit records. It never writes.
type AnalyticsService struct {
	store  *repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewAnalyticsService builds the service.
func NewAnalyticsService(store *repository.Store, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{store: store, logger: logger, now: time.Now}
}

// WeeklyReport covers the seven days ending now.
func (s *AnalyticsService) WeeklyReport(ctx context.Context) (*WeeklyReport, error) {
	to := s.now()
	return s.Report(ctx, to.Add(-7*24*time.Hour), to)
}

// Report covers tickets created in [from, to).
func (s *AnalyticsService) Report(ctx context.Context, from, to time.Time) (*WeeklyReport, error) {
	report := &WeeklyReport{From: from, To: to}

	var (
		attempts, finished int
		confSum            float64
	)
	filter := repository.TicketFilter{CreatedFrom: &from, CreatedTo: &to, Limit: reportPageSize}
	for {
		page, err := s.store.Tickets.ListWithFilter(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			report.TotalTickets++
			if t.State.Terminal() {
				finished++
				attempts += t.Attempts
			}
			switch t.State {
			case domain.TicketStateAccepted:
				report.Accepted++
				if t.Disposition != nil && *t.Disposition == domain.DispositionAutoResolve {
					report.AutoResolved++
				}
				conf, err := s.acceptedConfidence(ctx, t.ID)
				if err != nil {
					return nil, err
				}
				confSum += conf
			case domain.TicketStateEscalated:
				report.Escalated++
			case domain.TicketStateCancelled:
				report.Cancelled++
			case domain.TicketStateHalted:
				report.Halted++
			default:
				report.InFlight++
			}
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	report.AutoResolutionRate = ratio(report.AutoResolved, report.TotalTickets)
	report.EscalationRate = ratio(report.Escalated, report.TotalTickets)
	if finished > 0 {
		report.AverageAttempts = float64(attempts) / float64(finished)
	}
	if report.Accepted > 0 {
		report.AvgAcceptedConf = confSum / float64(report.Accepted)
	}

	signals, err := s.store.Feedback.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	positive := 0
	for _, sig := range signals {
		if sig.Judgment == domain.JudgmentPositive {
			positive++
		}
	}
	report.FeedbackSignals = len(signals)
	report.FeedbackPositiveRate = ratio(positive, len(signals))

	components, err := s.store.Tickets.CountByComponent(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(components) > reportTopComponent {
		components = components[:reportTopComponent]
	}
	report.TopComponents = components
	return report, nil
}

func (s *AnalyticsService) acceptedConfidence(ctx context.Context, ticketID string) (float64, error) {
	drafts, err := s.store.Drafts.ListByTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	verdicts, err := s.store.Verdicts.ListByTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	trail := domain.AuditTrail{Drafts: drafts, Verdicts: verdicts}
	if draft, ok := trail.AcceptedDraft(); ok {
		return draft.Confidence, nil
	}
	s.logger.Warn("accepted ticket without accepted draft", zap.String("ticket_id", ticketID))
	return 0, nil
}

// KnowledgeGaps lists components with at least minTickets tickets in the
// lookback period and no knowledge-base article.
func (s *AnalyticsService) KnowledgeGaps(ctx context.Context, lookback time.Duration, minTickets int) ([]KBGap, error) {
	now := s.now()
	counts, err := s.store.Tickets.CountByComponent(ctx, now.Add(-lookback), now)
	if err != nil {
		return nil, err
	}
	articles, err := s.store.Knowledge.ArticleCountsByComponent(ctx)
	if err != nil {
		return nil, err
	}
	gaps := []KBGap{}
	for _, c := range counts {
		if c.Count >= minTickets && articles[c.Component] == 0 {
			gaps = append(gaps, KBGap{Component: c.Component, Tickets: c.Count})
		}
	}
	return gaps, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
