package pipeline

// State is the pipeline's lifecycle position. Transitions only move forward:
//
//	Idle -> SessionOpen -> Navigated -> Harvested -> Downloading -> Done
//
// Failed is reachable from every non-terminal state. Done and Failed are
// terminal; a finished pipeline cannot be rerun.
type State int

const (
	StateIdle State = iota
	StateSessionOpen
	StateNavigated
	StateHarvested
	StateDownloading
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateSessionOpen: "session_open",
	StateNavigated:   "navigated",
	StateHarvested:   "harvested",
	StateDownloading: "downloading",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the pipeline has finished, successfully or not.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
