// Package surge correlates ticket volume with deployments to predict ticket
// surges before they reach the queue.
package surge

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

const sweepParallelism = 4

// Dependencies wires the Predictor.
type Dependencies struct {
	Tickets     repository.TicketRepository
	Deployments repository.DeploymentRepository
	Alerts      repository.AlertRepository
	Config      config.SurgeConfig
	Retry       retry.Policy
	Logger      *zap.Logger
}

// Predictor evaluates components and persists at most one alert per
// (component, deployment).
type Predictor struct {
	tickets     repository.TicketRepository
	deployments repository.DeploymentRepository
	alerts      repository.AlertRepository
	cfg         config.SurgeConfig
	retry       retry.Policy
	logger      *zap.Logger
}

// NewPredictor builds a Predictor.
func NewPredictor(deps Dependencies) *Predictor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{
		tickets:     deps.Tickets,
		deployments: deps.Deployments,
		alerts:      deps.Alerts,
		cfg:         deps.Config,
		retry:       deps.Retry,
		logger:      logger,
	}
}

// Correlate returns the most recent deployment in (now-window, now] that
// affects component, matching the service name first and the description
// second. It returns nil when none does.
func (p *Predictor) Correlate(ctx context.Context, component string, now time.Time) (*domain.DeploymentEvent, error) {
	from := now.Add(-p.cfg.Window)
	byService, err := retry.Do(ctx, p.retry, p.logger, "deployments by service", func(ctx context.Context) ([]domain.DeploymentEvent, error) {
		return p.deployments.ListByService(ctx, component, from, now)
	})
	if err != nil {
		return nil, err
	}
	if len(byService) > 0 {
		return &byService[0], nil
	}

	recent, err := retry.Do(ctx, p.retry, p.logger, "recent deployments", func(ctx context.Context) ([]domain.DeploymentEvent, error) {
		return p.deployments.ListSince(ctx, from)
	})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(component)
	for i := range recent {
		if recent[i].DeployedAt.After(now) {
			continue
		}
		if strings.Contains(strings.ToLower(recent[i].Description), needle) {
			return &recent[i], nil
		}
	}
	return nil, nil
}

// Evaluate assesses component at now and persists an alert when the rate
// deviation exceeds the multiplier. It returns nil when no new alert was raised.
func (p *Predictor) Evaluate(ctx context.Context, component string, now time.Time) (*domain.GhostTicketAlert, error) {
	if component == "" {
		return nil, nil
	}
	logger := p.logger.With(zap.String("component", component))

	deployment, err := p.Correlate(ctx, component, now)
	if err != nil {
		return nil, err
	}
	start := now.Add(-p.cfg.Window)
	var deploymentID *string
	if deployment != nil {
		start = deployment.DeployedAt
		id := deployment.ID
		deploymentID = &id
	}

	observed, err := p.count(ctx, component, start, now.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}
	baseline, err := p.count(ctx, component, start.Add(-p.cfg.BaselinePeriod), start)
	if err != nil {
		return nil, err
	}

	a := Assess(p.cfg, Observation{Count: observed, Elapsed: now.Sub(start), BaselineCount: baseline})
	if !a.Alert {
		return nil, nil
	}

	exists, err := retry.Do(ctx, p.retry, logger, "alert exists", func(ctx context.Context) (bool, error) {
		return p.alerts.Exists(ctx, component, deploymentID, now.Add(-p.cfg.Window))
	})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	alert := &domain.GhostTicketAlert{
		ID:              uuid.NewString(),
		Component:       component,
		WindowStart:     start,
		WindowEnd:       start.Add(p.cfg.Window),
		DeploymentID:    deploymentID,
		ObservedCount:   observed,
		ProjectedRate:   a.Rate,
		Baseline:        a.Baseline,
		PredictedDelta:  a.Delta,
		Confidence:      a.Confidence,
		BelowSaturation: observed < p.cfg.SaturationCount,
		RaisedAt:        now,
	}
	if _, err := retry.Do(ctx, p.retry, logger, "create alert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.alerts.Create(ctx, alert)
	}); err != nil {
		return nil, err
	}

	logger.Info("ghost ticket alert raised",
		zap.Stringp("deployment_id", deploymentID),
		zap.Int("observed", observed),
		zap.Float64("rate", a.Rate),
		zap.Float64("baseline", a.Baseline),
		zap.Float64("confidence", a.Confidence),
	)
	return alert, nil
}

// Sweep evaluates every component with recent tickets or deployments and
// returns the alerts raised, ordered by component. A failing component is
// logged and skipped.
func (p *Predictor) Sweep(ctx context.Context, now time.Time) ([]domain.GhostTicketAlert, error) {
	components, err := p.activeComponents(ctx, now)
	if err != nil {
		return nil, err
	}

	raised := make([]*domain.GhostTicketAlert, len(components))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)
	for i, component := range components {
		g.Go(func() error {
			alert, err := p.Evaluate(gctx, component, now)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("surge evaluation failed", zap.String("component", component), zap.Error(err))
				return nil
			}
			raised[i] = alert
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var alerts []domain.GhostTicketAlert
	for _, a := range raised {
		if a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

func (p *Predictor) activeComponents(ctx context.Context, now time.Time) ([]string, error) {
	lookback := p.cfg.ComponentsLookback
	if lookback < p.cfg.Window {
		lookback = p.cfg.Window
	}
	counts, err := retry.Do(ctx, p.retry, p.logger, "count by component", func(ctx context.Context) ([]repository.ComponentCount, error) {
		return p.tickets.CountByComponent(ctx, now.Add(-lookback), now.Add(time.Nanosecond))
	})
	if err != nil {
		return nil, err
	}
	deps, err := retry.Do(ctx, p.retry, p.logger, "recent deployments", func(ctx context.Context) ([]domain.DeploymentEvent, error) {
		return p.deployments.ListSince(ctx, now.Add(-p.cfg.Window))
	})
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(counts)+len(deps))
	for _, c := range counts {
		set[c.Component] = struct{}{}
	}
	for _, d := range deps {
		set[d.Service] = struct{}{}
	}
	components := make([]string, 0, len(set))
	for c := range set {
		if c != "" {
			components = append(components, c)
		}
	}
	sort.Strings(components)
	return components, nil
}

func (p *Predictor) count(ctx context.Context, component string, from, to time.Time) (int, error) {
	return retry.Do(ctx, p.retry, p.logger, "count tickets", func(ctx context.Context) (int, error) {
		return p.tickets.Count(ctx, repository.TicketFilter{Component: &component, CreatedFrom: &from, CreatedTo: &to})
	})
}
