package domain

import "time"

// ResolutionDraft is one Resolver attempt. Drafts are append-only.
type ResolutionDraft struct {
	ID         string
	TicketID   string
	Attempt    int
	Text       string
	Confidence float64
	ArticleIDs []string
	// Degraded marks an attempt whose generation failed or timed out.
	Degraded  bool
	CreatedAt time.Time
}

// Verdict is the Critic decision on a draft.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

// RejectionReason categorises why a draft was rejected.
type RejectionReason string

const (
	ReasonNone            RejectionReason = ""
	ReasonLowConfidence   RejectionReason = "low-confidence"
	ReasonMissingStep     RejectionReason = "missing-step"
	ReasonPolicyViolation RejectionReason = "policy-violation"
	ReasonLength          RejectionReason = "length"
	ReasonDuplicateDraft  RejectionReason = "duplicate-draft"
	ReasonOffTopic        RejectionReason = "off-topic"
	ReasonTimeout         RejectionReason = "timeout"
)

// CriticVerdict is the single verdict recorded for a draft.
type CriticVerdict struct {
	ID               string
	DraftID          string
	TicketID         string
	Attempt          int
	Verdict          Verdict
	Reason           RejectionReason
	Detail           string
	Threshold        float64
	ThresholdVersion int64
	CreatedAt        time.Time
}

// Accepted reports whether the verdict accepts its draft.
func (v CriticVerdict) Accepted() bool {
	return v.Verdict == VerdictAccept
}
