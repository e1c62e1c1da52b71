package studio

// Status is the phase of one orchestration run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPreparing  Status = "preparing"
	StatusEnhancing  Status = "enhancing-prompt"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Snapshot is an observable view of the in-flight session. Progress is
// 0-100 and only ever moves forward within a run.
type Snapshot struct {
	Status   Status
	Progress float64
	Results  int
	Err      error
}

// Progress milestones: the leading 40% covers preparation and enhancement,
// the generation loop spans 40-90, the trailing 10% is finalization.
const (
	progressEnhancing  = 20.0
	progressGenerating = 40.0
	progressLoopSpan   = 50.0
	progressComplete   = 100.0
)

type session struct {
	status   Status
	progress float64
	results  int
	err      error
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		Status:   s.status,
		Progress: s.progress,
		Results:  s.results,
		Err:      s.err,
	}
}
