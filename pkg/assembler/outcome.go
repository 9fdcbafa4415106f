package assembler

// OutcomeKind classifies how a stream ended.
type OutcomeKind string

const (
	OutcomePending          OutcomeKind = ""
	OutcomeFinal            OutcomeKind = "final"
	OutcomeSilentCompletion OutcomeKind = "silent_completion"
	OutcomeServerError      OutcomeKind = "server_error"
	OutcomeTransportError   OutcomeKind = "transport_error"
	OutcomeAbandoned        OutcomeKind = "abandoned"
)

// Outcome is the terminal result of a stream. Snapshot is the terminal
// snapshot, or for abandoned streams the last state before abandonment.
type Outcome struct {
	Kind     OutcomeKind
	Err      error
	Snapshot Snapshot
}

// Success reports an explicit final or a silent completion.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeFinal || o.Kind == OutcomeSilentCompletion
}

func (o Outcome) Done() bool { return o.Kind != OutcomePending }
