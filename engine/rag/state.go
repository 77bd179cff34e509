package rag

import "fmt"

// State is a step of the query pipeline.
type State int

const (
	StateRewriting State = iota
	StateEmbedding
	StateRetrieving
	StateAssembling
	StateGenerating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRewriting:
		return "rewriting"
	case StateEmbedding:
		return "embedding"
	case StateRetrieving:
		return "retrieving"
	case StateAssembling:
		return "assembling"
	case StateGenerating:
		return "generating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer is notified of every state the pipeline enters, including
// StateFailed.
type Observer func(State)

// StageError reports the stage a query failed in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("rag: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
