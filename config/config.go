package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ZacxDev/flowgraph/fs"
	"github.com/ZacxDev/flowgraph/pipeline"
	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// ModuleCache is used to store loaded Starlark modules
type ModuleCache struct {
	modules map[string]starlark.StringDict
	mutex   sync.RWMutex
}

// NewModuleCache creates a new ModuleCache
func NewModuleCache() *ModuleCache {
	return &ModuleCache{
		modules: make(map[string]starlark.StringDict),
	}
}

// Get retrieves a module from the cache
func (mc *ModuleCache) Get(key string) (starlark.StringDict, bool) {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	module, ok := mc.modules[key]
	return module, ok
}

// Set stores a module in the cache
func (mc *ModuleCache) Set(key string, module starlark.StringDict) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.modules[key] = module
}

// LoadModule is a custom load function for Starlark that implements caching
func LoadModule(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	cache := thread.Local("moduleCache").(*ModuleCache)

	if cachedModule, ok := cache.Get(module); ok {
		return cachedModule, nil
	}

	filename := module
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(filepath.Dir(thread.Name), filename)
	}

	globals, err := starlark.ExecFile(thread, filename, nil, nil)
	if err != nil {
		return nil, err
	}

	cache.Set(module, globals)

	return globals, nil
}

// ParsePipelineConfig executes a Starlark pipeline definition and returns
// the declared jobs. The file must define a global dictionary `pipeline`
// mapping job names to {cmd, deps, inputs, outputs, allow_failure}.
func ParsePipelineConfig(filesystem fs.FileSystem, filename string) (map[string]*pipeline.JobSpec, error) {
	cache := NewModuleCache()
	thread := &starlark.Thread{
		Name: filename,
		Load: LoadModule,
	}
	thread.SetLocal("moduleCache", cache)

	globals, err := starlark.ExecFile(thread, filename, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Starlark script")
	}

	configValue, ok := globals["pipeline"]
	if !ok {
		return nil, errors.New("global 'pipeline' object not found in Starlark config")
	}

	configDict, ok := configValue.(*starlark.Dict)
	if !ok {
		return nil, errors.New("global 'pipeline' object is not a dictionary")
	}

	specs := make(map[string]*pipeline.JobSpec)

	for _, item := range configDict.Items() {
		name, ok := item.Index(0).(starlark.String)
		if !ok {
			return nil, errors.New("pipeline keys must be strings")
		}
		dict, ok := item.Index(1).(*starlark.Dict)
		if !ok {
			continue
		}

		spec, err := parseJobSpec(filesystem, name.GoString(), dict)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse job %s", name.GoString())
		}
		specs[spec.Name] = spec
	}

	return specs, nil
}

func parseJobSpec(filesystem fs.FileSystem, name string, dict *starlark.Dict) (*pipeline.JobSpec, error) {
	spec := &pipeline.JobSpec{Name: name}

	if cmd, ok, err := getStringValue(dict, "cmd"); err != nil {
		return nil, err
	} else if ok {
		spec.Cmd = cmd
	}

	if deps, ok, err := getStringList(dict, "deps"); err != nil {
		return nil, err
	} else if ok {
		spec.DependsOn = deps
	}

	if inputs, ok, err := getStringList(dict, "inputs"); err != nil {
		return nil, err
	} else if ok {
		spec.Inputs = inputs
	}

	if outputs, ok, err := getStringList(dict, "outputs"); err != nil {
		return nil, err
	} else if ok {
		spec.Outputs = outputs
	}

	if allowFailure, ok, err := getBooleanValue(dict, "allow_failure"); err != nil {
		return nil, err
	} else if ok {
		spec.AllowFailure = allowFailure
	}

	inputHash, err := calculateInputHash(filesystem, spec.Inputs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to calculate input hash")
	}
	spec.InputHash = inputHash

	return spec, nil
}

// calculateInputHash hashes the content of every file matched by the
// input patterns. Files are hashed concurrently, then combined in sorted
// path order so the result is deterministic.
func calculateInputHash(filesystem fs.FileSystem, patterns []string) (string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filesystem.DoublestarGlob(pattern)
		if err != nil {
			return "", errors.Wrapf(err, "error expanding glob pattern %s", pattern)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	hashes := make([][]byte, len(paths))
	var eg errgroup.Group
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			content, err := filesystem.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read input file %s", path)
			}
			sum := sha256.Sum256(content)
			hashes[i] = sum[:]
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}

	h := sha256.New()
	for _, sum := range hashes {
		h.Write(sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func getBooleanValue(dict *starlark.Dict, key string) (bool, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return false, false, err
	}

	boolValue, ok := value.(starlark.Bool)
	if !ok {
		return false, false, fmt.Errorf("expected bool for key %s, got %T", key, value)
	}

	return bool(boolValue), true, nil
}

func getStringValue(dict *starlark.Dict, key string) (string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return "", false, err
	}

	strValue, ok := value.(starlark.String)
	if !ok {
		return "", false, fmt.Errorf("expected string for key %s, got %T", key, value)
	}

	return strValue.GoString(), true, nil
}

func getStringList(dict *starlark.Dict, key string) ([]string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return nil, false, err
	}

	list, ok := value.(*starlark.List)
	if !ok {
		return nil, false, fmt.Errorf("expected list for key %s, got %T", key, value)
	}

	var result []string
	iter := list.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		str, ok := x.(starlark.String)
		if !ok {
			return nil, false, fmt.Errorf("expected string in list for key %s, got %T", key, x)
		}
		result = append(result, str.GoString())
	}

	return result, true, nil
}
