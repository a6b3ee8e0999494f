package model

import "fmt"

// QueueState names one of the sibling lifecycle directories under the tasks
// root. An envelope file lives in exactly one of them at a time.
type QueueState string

const (
	StateInbox      QueueState = "inbox"
	StateFailed     QueueState = "failed"
	StateQuarantine QueueState = "quarantine"
)

// DLQStates are the states holding envelopes that did not complete
// successfully and are eligible for operator action.
var DLQStates = []QueueState{StateFailed, StateQuarantine}

func ParseQueueState(s string) (QueueState, error) {
	switch QueueState(s) {
	case StateInbox, StateFailed, StateQuarantine:
		return QueueState(s), nil
	}
	return "", fmt.Errorf("unknown queue state %q (want inbox|failed|quarantine)", s)
}
