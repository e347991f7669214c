package backup

// State is a stage of a backup run.
type State int

// Run states, in the order a successful run visits them.
const (
	Idle State = iota
	Preparing
	DumpingDatabases
	CopyingFiles
	Compressing
	CleaningUp
	Succeeded
	Failed
)

var stateNames = map[State]string{
	Idle:             "idle",
	Preparing:        "preparing",
	DumpingDatabases: "dumping_databases",
	CopyingFiles:     "copying_files",
	Compressing:      "compressing",
	CleaningUp:       "cleaning_up",
	Succeeded:        "succeeded",
	Failed:           "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}
