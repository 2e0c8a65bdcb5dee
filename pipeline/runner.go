package pipeline

import (
	"bufio"
	"strings"
	"time"

	"github.com/ZacxDev/flowgraph/fs"
	"github.com/ZacxDev/flowgraph/graph"
	"github.com/pkg/errors"
)

// Runner turns a set of declarative job specs into a task graph and
// executes it. Dependency ordering, parallelism, and failure propagation
// all come from the graph engine; the runner contributes the job payload
// (shell command execution with output caching) and status reporting.
type Runner struct {
	Specs    map[string]*JobSpec
	Status   StatusManager
	Cache    CacheManager
	LockFile LockFileManager
	Commands CommandExecutor
	FS       fs.FileSystem
}

func NewRunner(specs map[string]*JobSpec) *Runner {
	filesystem := fs.RealFileSystem{}
	return &Runner{
		Specs:    specs,
		Status:   NewStatusManager(),
		Cache:    NewCacheManager(filesystem, DefaultCacheDir),
		LockFile: NewLockFileManager(filesystem),
		Commands: RealCommandExecutor{},
		FS:       filesystem,
	}
}

// Validate checks that every declared dependency exists and that the
// specs are acyclic, beyond the direct back-edge check the engine itself
// performs.
func (r *Runner) Validate() error {
	resolver := NewDependencyResolver()
	for name, spec := range r.Specs {
		resolver.AddNode(name, spec.DependsOn)
	}
	_, err := resolver.TopologicalSort()
	return err
}

// BuildGraph assembles the executable task graph: one node per job,
// one edge per declared dependency.
func (r *Runner) BuildGraph(threads int) (*graph.Graph, error) {
	g := graph.New(threads, true)

	tasks := make(map[string]graph.Task, len(r.Specs))
	for name, spec := range r.Specs {
		name, spec := name, spec
		task, err := g.PushFunc(func() error {
			return r.runJob(name, spec)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to add job %s to graph", name)
		}
		tasks[name] = task
		r.Status.SetStatus(name, StatusQueued)
	}

	for name, spec := range r.Specs {
		for _, dep := range spec.DependsOn {
			depTask, ok := tasks[dep]
			if !ok {
				return nil, errors.Errorf("job %q depends on unknown job %q", name, dep)
			}
			if err := tasks[name].Depend(depTask); err != nil {
				return nil, errors.Wrapf(err, "failed to connect %s -> %s", dep, name)
			}
		}
	}

	return g, nil
}

// Run validates the specs, loads the lock file, executes the graph, and
// saves the fresh lock file.
func (r *Runner) Run(threads int) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := r.LockFile.LoadLockFile(); err != nil {
		return errors.Wrap(err, "failed to load lock file")
	}
	if err := r.Cache.EnsureCacheDir(); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}

	g, err := r.BuildGraph(threads)
	if err != nil {
		return err
	}
	if err := g.Start(); err != nil {
		return err
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if r.Status.FailedCount() > 0 {
		return errors.Errorf("execution failed for %d job(s)", r.Status.FailedCount())
	}

	return errors.Wrap(r.LockFile.SaveFreshLockFile(), "failed to save lock file")
}

// runJob is the payload of one graph node. A returned error aborts the
// whole pipeline unless the spec allows failure.
func (r *Runner) runJob(name string, spec *JobSpec) error {
	key := r.Cache.LockfileKey(spec)

	if entry, ok := r.LockFile.GetCachedEntry(key); ok {
		if err := r.Cache.ApplyCachedFileChanges(entry); err == nil {
			r.Status.UpdateStatus(name, StatusCached, time.Now(), time.Now())
			r.LockFile.AddFreshEntry(key, entry)
			return nil
		}
		// A broken cache entry falls through to a real run.
	}

	r.Status.UpdateStatus(name, StatusRunning, time.Now(), time.Time{})

	output, err := r.Commands.Execute("sh", "-c", spec.Cmd)
	r.appendOutput(name, output)
	if err != nil {
		r.Status.MarkAsFailed(name)
		r.Status.UpdateStatus(name, StatusFailed, time.Time{}, time.Now())
		if spec.AllowFailure {
			return nil
		}
		return errors.Wrapf(err, "job %s failed", name)
	}

	if err := r.verifyOutputs(spec); err != nil {
		r.Status.MarkAsFailed(name)
		r.Status.UpdateStatus(name, StatusFailed, time.Time{}, time.Now())
		return errors.Wrapf(err, "job %s produced no outputs", name)
	}

	if entry, err := r.Cache.CollectAndStoreFileChanges(spec); err == nil {
		r.LockFile.AddFreshEntry(key, *entry)
	}

	r.Status.UpdateStatus(name, StatusCompleted, time.Time{}, time.Now())
	return nil
}

// verifyOutputs checks that every declared output pattern matched at
// least one file.
func (r *Runner) verifyOutputs(spec *JobSpec) error {
	for _, pattern := range spec.Outputs {
		matches, err := r.FS.DoublestarGlob(pattern)
		if err != nil {
			return errors.Wrapf(err, "error expanding glob pattern %s", pattern)
		}
		if len(matches) == 0 {
			return errors.Errorf("output pattern %s matched nothing", pattern)
		}
	}
	return nil
}

func (r *Runner) appendOutput(name string, output []byte) {
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		r.Status.AppendLog(name, scanner.Text())
	}
}
