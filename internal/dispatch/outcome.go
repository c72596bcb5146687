package dispatch

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusRejected  Status = "rejected"
	// StatusInterrupted marks the envelope that was on the wire when the session died.
	// Whether the relay accepted it is unknown.
	StatusInterrupted  Status = "interrupted"
	StatusNotAttempted Status = "not_attempted"
)

type Outcome struct {
	Recipient string `json:"recipient"`
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type Tally struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type State string

const (
	StateNotStarted State = "NOT-STARTED"
	StateSending    State = "SENDING"
	StateCompleted  State = "COMPLETED"
	StateAborted    State = "ABORTED"
)

// Message is the content shared by every envelope of a batch.
type Message struct {
	Subject string
	Body    string
}

// Result holds one outcome per recipient, in recipient order.
type Result struct {
	Tally    Tally
	Outcomes []Outcome
	State    State
	// Err is the session fault or cancellation that aborted the run.
	Err error
}

func (r Result) Aborted() bool {
	return r.State == StateAborted
}

// Unsettled counts recipients that are neither delivered nor rejected.
func (r Result) Unsettled() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusInterrupted || o.Status == StatusNotAttempted {
			n++
		}
	}
	return n
}
