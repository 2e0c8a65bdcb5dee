package pipeline

// JobSpec is one declarative job of a pipeline: a shell command with the
// names of the jobs it must run after, the input patterns its cache key
// is derived from, and the output patterns it produces.
type JobSpec struct {
	Name      string
	Cmd       string
	DependsOn []string // names of jobs that must complete first
	Inputs    []string // glob patterns hashed into the cache key
	Outputs   []string // glob patterns cached and verified after the run
	InputHash string   // content hash of the matched inputs

	// AllowFailure keeps the pipeline going when this job fails.
	AllowFailure bool
}
