package domain

type FetchOutcome string

const (
	OutcomeSuccess         FetchOutcome = "success"
	OutcomeNotFound        FetchOutcome = "not_found"
	OutcomeInvalidContent  FetchOutcome = "invalid_content"
	OutcomeTimeout         FetchOutcome = "timeout"
	OutcomeConnectionError FetchOutcome = "connection_error"
	OutcomeHTTPError       FetchOutcome = "http_error"
	OutcomeError           FetchOutcome = "error"
)

// Transient reports whether the outcome is a network condition worth
// seeing again at a later id.
func (o FetchOutcome) Transient() bool {
	return o == OutcomeTimeout || o == OutcomeConnectionError
}

type ProcessStatus string

const (
	StatusMerged      ProcessStatus = "merged"
	StatusDuplicate   ProcessStatus = "duplicate"
	StatusFetchFailed ProcessStatus = "fetch_failed"
	StatusParseFailed ProcessStatus = "parse_failed"
	StatusMergeFailed ProcessStatus = "merge_failed"
)

type ProcessResult struct {
	BattleID   int64
	Status     ProcessStatus
	Outcome    FetchOutcome
	StatusCode int
	Err        error
}

// Succeeded is true when the id can be checkpointed: either merged now or
// already part of the aggregates.
func (r ProcessResult) Succeeded() bool {
	return r.Status == StatusMerged || r.Status == StatusDuplicate
}
