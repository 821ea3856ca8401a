package domain

// AuditTrail is everything recorded for a ticket, in creation order.
type AuditTrail struct {
	Ticket      Ticket
	Triage      []TriageScore
	Drafts      []ResolutionDraft
	Verdicts    []CriticVerdict
	Transitions []Transition
}

// RejectionReasons lists the reasons of every rejecting verdict in attempt order.
func (a AuditTrail) RejectionReasons() []RejectionReason {
	reasons := make([]RejectionReason, 0, len(a.Verdicts))
	for _, v := range a.Verdicts {
		if v.Verdict == VerdictReject {
			reasons = append(reasons, v.Reason)
		}
	}
	return reasons
}

// AcceptedDraft returns the draft carrying the accept verdict, if any.
func (a AuditTrail) AcceptedDraft() (*ResolutionDraft, bool) {
	for _, v := range a.Verdicts {
		if !v.Accepted() {
			continue
		}
		for i := range a.Drafts {
			if a.Drafts[i].ID == v.DraftID {
				return &a.Drafts[i], true
			}
		}
	}
	return nil, false
}
