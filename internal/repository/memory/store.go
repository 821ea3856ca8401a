// Package memory is an in-process Knowledge Store used in tests and when no
// database is configured. Similarity is token overlap.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

type db struct {
	mu          sync.RWMutex
	tickets     map[string]domain.Ticket
	triage      map[string][]domain.TriageScore
	drafts      map[string][]domain.ResolutionDraft
	verdicts    map[string][]domain.CriticVerdict
	transitions map[string][]domain.Transition
	deployments []domain.DeploymentEvent
	alerts      []domain.GhostTicketAlert
	feedback    []domain.FeedbackSignal
	profiles    map[string]domain.CustomerProfile
	articles    map[string]domain.KBArticle
}

// NewStore returns an empty Store with every repository sharing one database.
func NewStore() *repository.Store {
	d := &db{
		tickets:     make(map[string]domain.Ticket),
		triage:      make(map[string][]domain.TriageScore),
		drafts:      make(map[string][]domain.ResolutionDraft),
		verdicts:    make(map[string][]domain.CriticVerdict),
		transitions: make(map[string][]domain.Transition),
		profiles:    make(map[string]domain.CustomerProfile),
		articles:    make(map[string]domain.KBArticle),
	}
	return &repository.Store{
		Tickets:     &tickets{d},
		Triage:      &triage{d},
		Drafts:      &drafts{d},
		Verdicts:    &verdicts{d},
		Transitions: &transitions{d},
		Deployments: &deployments{d},
		Alerts:      &alerts{d},
		Feedback:    &feedback{d},
		Knowledge:   &knowledge{d},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperrors.ErrNotFound)
}

// overlap scores how much of query's vocabulary appears in doc, in [0,1].
func overlap(query []string, doc string) float64 {
	if len(query) == 0 {
		return 0
	}
	docTokens := repository.Tokenize(doc)
	if len(docTokens) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(docTokens))
	for _, tok := range docTokens {
		set[tok] = struct{}{}
	}
	shared := 0
	for _, tok := range query {
		if _, ok := set[tok]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(query))*float64(len(docTokens)))
}

type tickets struct{ *db }

func (r *tickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
	}
	t := *ticket
	t.UpdatedAt = t.CreatedAt
	r.tickets[t.ID] = t
	return nil
}

func (r *tickets) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tickets[ticket.ID]
	if !ok {
		return notFound("ticket", ticket.ID)
	}
	t := *ticket
	t.ExternalKey = current.ExternalKey
	t.CustomerID = current.CustomerID
	t.Body = current.Body
	t.CreatedAt = current.CreatedAt
	r.tickets[t.ID] = t
	return nil
}

func (r *tickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, notFound("ticket", id)
	}
	return &t, nil
}

func (r *tickets) match(filter repository.TicketFilter) []domain.Ticket {
	var states map[domain.TicketState]struct{}
	if len(filter.States) > 0 {
		states = make(map[domain.TicketState]struct{}, len(filter.States))
		for _, s := range filter.States {
			states[s] = struct{}{}
		}
	}
	var result []domain.Ticket
	for _, t := range r.tickets {
		if filter.CustomerID != nil && t.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Component != nil && t.Component != *filter.Component {
			continue
		}
		if states != nil {
			if _, ok := states[t.State]; !ok {
				continue
			}
		}
		if filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && !t.CreatedAt.Before(*filter.CreatedTo) {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (r *tickets) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.match(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *tickets) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.match(filter)), nil
}

func (r *tickets) ListSimilar(_ context.Context, text, excludeID string, k int) ([]domain.Scored[domain.Ticket], error) {
	query := repository.Tokenize(text)
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Scored[domain.Ticket]
	for id, t := range r.tickets {
		if id == excludeID {
			continue
		}
		if score := overlap(query, t.Body); score > 0 {
			result = append(result, domain.Scored[domain.Ticket]{Record: t, Score: score})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score == result[j].Score {
			return result[i].Record.CreatedAt.After(result[j].Record.CreatedAt)
		}
		return result[i].Score > result[j].Score
	})
	if len(result) > k {
		result = result[:k]
	}
	return result, nil
}

func (r *tickets) CountByComponent(_ context.Context, from, to time.Time) ([]repository.ComponentCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, t := range r.tickets {
		if t.Component == "" || t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		counts[t.Component]++
	}
	result := make([]repository.ComponentCount, 0, len(counts))
	for c, n := range counts {
		result = append(result, repository.ComponentCount{Component: c, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count == result[j].Count {
			return result[i].Component < result[j].Component
		}
		return result[i].Count > result[j].Count
	})
	return result, nil
}

type triage struct{ *db }

func (r *triage) Create(_ context.Context, score *domain.TriageScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triage[score.TicketID] = append(r.triage[score.TicketID], *score)
	return nil
}

func (r *triage) ListByTicket(_ context.Context, ticketID string) ([]domain.TriageScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.TriageScore(nil), r.triage[ticketID]...), nil
}

type drafts struct{ *db }

func (r *drafts) Create(_ context.Context, draft *domain.ResolutionDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.drafts[draft.TicketID] {
		if existing.Attempt == draft.Attempt {
			return fmt.Errorf("draft attempt %d for ticket %s: %w", draft.Attempt, draft.TicketID, apperrors.ErrInvariantViolation)
		}
	}
	d := *draft
	d.ArticleIDs = append([]string(nil), draft.ArticleIDs...)
	list := append(r.drafts[d.TicketID], d)
	sort.Slice(list, func(i, j int) bool { return list[i].Attempt < list[j].Attempt })
	r.drafts[d.TicketID] = list
	return nil
}

func (r *drafts) ListByTicket(_ context.Context, ticketID string) ([]domain.ResolutionDraft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.drafts[ticketID]
	out := make([]domain.ResolutionDraft, len(src))
	for i, d := range src {
		d.ArticleIDs = append([]string(nil), d.ArticleIDs...)
		out[i] = d
	}
	return out, nil
}

type verdicts struct{ *db }

func (r *verdicts) Create(_ context.Context, verdict *domain.CriticVerdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.verdicts[verdict.TicketID] {
		if existing.DraftID == verdict.DraftID {
			return fmt.Errorf("second verdict for draft %s: %w", verdict.DraftID, apperrors.ErrInvariantViolation)
		}
		if existing.Accepted() && verdict.Accepted() {
			return fmt.Errorf("second accepted draft for ticket %s: %w", verdict.TicketID, apperrors.ErrInvariantViolation)
		}
	}
	list := append(r.verdicts[verdict.TicketID], *verdict)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Attempt < list[j].Attempt })
	r.verdicts[verdict.TicketID] = list
	return nil
}

func (r *verdicts) ListByTicket(_ context.Context, ticketID string) ([]domain.CriticVerdict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.CriticVerdict(nil), r.verdicts[ticketID]...), nil
}

type transitions struct{ *db }

func (r *transitions) Create(_ context.Context, transition *domain.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[transition.TicketID] = append(r.transitions[transition.TicketID], *transition)
	return nil
}

func (r *transitions) ListByTicket(_ context.Context, ticketID string) ([]domain.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Transition(nil), r.transitions[ticketID]...), nil
}

type deployments struct{ *db }

func (r *deployments) Create(_ context.Context, event *domain.DeploymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deployments = append(r.deployments, *event)
	return nil
}

func (r *deployments) GetByID(_ context.Context, id string) (*domain.DeploymentEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.deployments {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, notFound("deployment", id)
}

func (r *deployments) ListByService(_ context.Context, service string, from, to time.Time) ([]domain.DeploymentEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.DeploymentEvent
	for _, d := range r.deployments {
		if d.Service == service && !d.DeployedAt.Before(from) && !d.DeployedAt.After(to) {
			result = append(result, d)
		}
	}
	sortDeployments(result)
	return result, nil
}

func (r *deployments) ListSince(_ context.Context, from time.Time) ([]domain.DeploymentEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.DeploymentEvent
	for _, d := range r.deployments {
		if !d.DeployedAt.Before(from) {
			result = append(result, d)
		}
	}
	sortDeployments(result)
	return result, nil
}

func sortDeployments(list []domain.DeploymentEvent) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].DeployedAt.Equal(list[j].DeployedAt) {
			return list[i].RecordedAt.After(list[j].RecordedAt)
		}
		return list[i].DeployedAt.After(list[j].DeployedAt)
	})
}

type alerts struct{ *db }

func (r *alerts) Create(_ context.Context, alert *domain.GhostTicketAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, *alert)
	return nil
}

func (r *alerts) Exists(_ context.Context, component string, deploymentID *string, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.alerts {
		if a.Component != component {
			continue
		}
		if deploymentID != nil {
			if a.DeploymentID != nil && *a.DeploymentID == *deploymentID {
				return true, nil
			}
			continue
		}
		if a.DeploymentID == nil && !a.RaisedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *alerts) ListRecent(_ context.Context, since time.Time, limit int) ([]domain.GhostTicketAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.GhostTicketAlert
	for i := len(r.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		if !r.alerts[i].RaisedAt.Before(since) {
			result = append(result, r.alerts[i])
		}
	}
	return result, nil
}

type feedback struct{ *db }

func (r *feedback) Create(_ context.Context, signal *domain.FeedbackSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, *signal)
	return nil
}

func (r *feedback) ListBetween(_ context.Context, from, to time.Time) ([]domain.FeedbackSignal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.FeedbackSignal
	for _, s := range r.feedback {
		if !s.ReceivedAt.Before(from) && s.ReceivedAt.Before(to) {
			result = append(result, s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ReceivedAt.Before(result[j].ReceivedAt) })
	return result, nil
}

type knowledge struct{ *db }

func (r *knowledge) GetProfile(_ context.Context, customerID string) (*domain.CustomerProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[customerID]
	if !ok {
		return nil, notFound("customer", customerID)
	}
	p.OpenTickets = 0
	for _, t := range r.tickets {
		if t.CustomerID == customerID && !t.State.Terminal() {
			p.OpenTickets++
		}
	}
	return &p, nil
}

func (r *knowledge) UpsertProfile(_ context.Context, profile *domain.CustomerProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.CustomerID] = *profile
	return nil
}

func (r *knowledge) SearchArticles(_ context.Context, text string, k int) ([]domain.Scored[domain.KBArticle], error) {
	query := repository.Tokenize(text)
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Scored[domain.KBArticle]
	for _, a := range r.articles {
		if a.Draft {
			continue
		}
		if score := overlap(query, a.Title+" "+a.Content); score > 0 {
			result = append(result, domain.Scored[domain.KBArticle]{Record: a, Score: score * a.Weight})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score == result[j].Score {
			return result[i].Record.ID < result[j].Record.ID
		}
		return result[i].Score > result[j].Score
	})
	if len(result) > k {
		result = result[:k]
	}
	return result, nil
}

func (r *knowledge) GetArticle(_ context.Context, id string) (*domain.KBArticle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.articles[id]
	if !ok {
		return nil, notFound("article", id)
	}
	return &a, nil
}

func (r *knowledge) UpsertArticle(_ context.Context, article *domain.KBArticle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[article.ID] = *article
	return nil
}

func (r *knowledge) UpdateArticleWeight(_ context.Context, id string, weight float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return notFound("article", id)
	}
	a.Weight = weight
	a.UpdatedAt = at
	r.articles[id] = a
	return nil
}

func (r *knowledge) ArticleCountsByComponent(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range r.articles {
		if !a.Draft {
			counts[a.Component]++
		}
	}
	return counts, nil
}
