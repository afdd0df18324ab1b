package domain

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

type RecipientPolicy string

const (
	RecipientsFirst RecipientPolicy = "first"
	RecipientsAll   RecipientPolicy = "all"
)

type Progress struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

type Campaign struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"createdAt"`
	Status       CampaignStatus  `json:"status"`
	Subject      string          `json:"subject"`
	BodyTemplate string          `json:"bodyTemplate"`
	Recipients   RecipientPolicy `json:"recipients"`
	TargetJobIDs []int64         `json:"targetJobIds"`
	Progress     Progress        `json:"progress"`
}

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSent    Outcome = "sent"
	OutcomeBounced Outcome = "bounced"
	OutcomeError   Outcome = "error"
)

func (o Outcome) Terminal() bool { return o != OutcomePending }

// DeliveryRecord tracks one recipient address of one job within a campaign.
type DeliveryRecord struct {
	CampaignID    string    `json:"campaignId"`
	JobID         int64     `json:"jobId"`
	EmailUsed     string    `json:"emailUsed"`
	AttemptCount  int       `json:"attemptCount"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
	Outcome       Outcome   `json:"outcome"`
	LastError     string    `json:"lastError,omitempty"`
}

// Summary is what callers see for a campaign.
type CampaignSummary struct {
	ID      string         `json:"id"`
	Status  CampaignStatus `json:"status"`
	Sent    int            `json:"sent"`
	Bounced int            `json:"bounced"`
	Error   int            `json:"error"`
	Pending int            `json:"pending"`
}

func Summarize(c Campaign, recs []DeliveryRecord) CampaignSummary {
	s := CampaignSummary{ID: c.ID, Status: c.Status}
	for _, r := range recs {
		switch r.Outcome {
		case OutcomeSent:
			s.Sent++
		case OutcomeBounced:
			s.Bounced++
		case OutcomeError:
			s.Error++
		default:
			s.Pending++
		}
	}
	return s
}

func ProgressOf(recs []DeliveryRecord) Progress {
	var p Progress
	for _, r := range recs {
		switch r.Outcome {
		case OutcomeSent:
			p.Sent++
		case OutcomeBounced, OutcomeError:
			p.Failed++
		default:
			p.Pending++
		}
	}
	return p
}
