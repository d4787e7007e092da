package lead

import "time"

// State is the position of an item in the run state machine.
type State string

const (
	StateIngested   State = "ingested"
	StateClassified State = "classified"
	StateRejected   State = "rejected"
	StateDuplicate  State = "duplicate"
	StateUnique     State = "unique"
	StateResolving  State = "resolving"
	StateUnresolved State = "unresolved"
	StateResolved   State = "resolved"
	StateDrafting   State = "drafting"
	StateSendable   State = "sendable"
	StateSending    State = "sending"
	StateSent       State = "sent"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
	StateHeld       State = "held"
	StateDrafted    State = "drafted"
	StateMalformed  State = "malformed"
)

// Terminal reports whether a run never picks the item up again.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateDuplicate, StateUnresolved, StateSent, StateFailed, StateMalformed:
		return true
	}
	return false
}

// OutreachStatus is the lifecycle of an outreach record. Pending records were
// resolved but not drafted yet; skipped and approved ones wait for a later run.
type OutreachStatus string

const (
	OutreachPending   OutreachStatus = "pending"
	OutreachDrafted   OutreachStatus = "drafted"
	OutreachSending   OutreachStatus = "sending"
	OutreachSent      OutreachStatus = "sent"
	OutreachSkipped   OutreachStatus = "skipped"
	OutreachFailed    OutreachStatus = "failed"
	OutreachHeld      OutreachStatus = "held"
	OutreachApproved  OutreachStatus = "approved"
	OutreachDiscarded OutreachStatus = "discarded"
)

// OutreachRecord is one email aimed at one contact for one post.
type OutreachRecord struct {
	ID           string          `json:"id"`
	PostRef      string          `json:"post_ref"`
	Kind         Kind            `json:"kind"`
	Role         string          `json:"role,omitempty"`
	Signals      []string        `json:"signals,omitempty"`
	Funding      string          `json:"funding,omitempty"`
	Company      Company         `json:"company"`
	Contact      Contact         `json:"contact"`
	ChosenEmail  *EmailCandidate `json:"chosen_email"`
	Ambiguous    bool            `json:"ambiguous"`
	Approved     bool            `json:"approved,omitempty"`
	Status       OutreachStatus  `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error,omitempty"`
	Subject      string          `json:"subject,omitempty"`
	Body         string          `json:"body,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	SentAt       time.Time       `json:"sent_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LedgerEntry is the persisted current state of one item in the run ledger.
type LedgerEntry struct {
	ItemID     string    `json:"item_id"`
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	CompanyKey string    `json:"company_key,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
