package workflow

// Status is the outcome of one UI action.
type Status string

const (
	// StatusSucceeded means the action changed the remote state.
	StatusSucceeded Status = "succeeded"
	// StatusAlreadyDone means the remote state was already the desired one.
	StatusAlreadyDone Status = "already_done"
	// StatusFailed means the action did not take effect. Reason says why.
	StatusFailed Status = "failed"
)

// Confidence says how the outcome was established.
type Confidence string

const (
	// ConfidenceConfirmed means an explicit signal was observed on the page.
	ConfidenceConfirmed Confidence = "confirmed"
	// ConfidenceProbable means the outcome is inferred from indirect evidence
	// such as a route change or a disappearing element.
	ConfidenceProbable Confidence = "probable"
	// ConfidenceUnknown means no evidence either way.
	ConfidenceUnknown Confidence = "unknown"
)

// Result is the typed outcome every workflow returns.
type Result struct {
	Status     Status     `json:"status"`
	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason,omitempty"`
}

// OK reports whether the remote state is now the desired one.
func (r Result) OK() bool {
	return r.Status == StatusSucceeded || r.Status == StatusAlreadyDone
}

func succeeded(c Confidence, reason string) Result {
	return Result{Status: StatusSucceeded, Confidence: c, Reason: reason}
}

func alreadyDone(reason string) Result {
	return Result{Status: StatusAlreadyDone, Confidence: ConfidenceProbable, Reason: reason}
}

func failed(c Confidence, reason string) Result {
	return Result{Status: StatusFailed, Confidence: c, Reason: reason}
}
