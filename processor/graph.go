package processor

import (
	"fmt"
	"sort"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/reopen"
)

// ObjectSpec describes one `objects.*` entry before construction — the Go
// analogue of Processor::PreObject in
// original_source/src/processor/processor.h. New is deferred (not called
// until init-depth order is known) so construction order matches spec.md
// §4.5 step 3: "Instantiate objects in init-depth order."
type ObjectSpec struct {
	Name string
	// Worker is the worker name this object is assigned to; defaults to
	// "default" per spec.md §4.5 step 4.
	Worker string
	// DependsNames are open-dependencies: every name here must reach
	// channel.Active before this object is activated (spec.md §4.5 "open
	// sequence").
	DependsNames []string
	// InitDependsNames are init-dependencies (construction ordering only);
	// defaults to DependsNames when nil, matching spec.md §4.5 step 1's
	// "init-deps (from depends plus every channel reference ... plus
	// master)" superset relationship — callers that have extra
	// config-channel or master references append them explicitly.
	InitDependsNames []string
	Shutdown         ShutdownPolicy
	Reopen           reopen.Config
	Disabled         bool
	// Stage, if non-empty, assigns this object to a named readiness stage
	// (spec.md §4.5 step 5). Objects with no stage are swept into an
	// auto-generated "active" stage covering every leaf (object nothing
	// else depends on), per spec.md: "an auto-generated active stage
	// covers all leaves if none declared."
	Stage string
	// New constructs the transport and returns it plus its embedded Base.
	// Invoked once, during BuildGraph, in init-depth order.
	New func() (Channel, *channel.Base, error)
}

type depthEntry struct {
	spec      ObjectSpec
	openDepth int
	initDepth int
}

// depth computes (and memoizes) the dependency depth of entries[name] in
// either the open-deps or init-deps DAG, detecting cycles via the current
// DFS path — grounded on Processor::object_depth in
// original_source/src/processor/processor.cc.
func depth(entries map[string]*depthEntry, name string, init bool, path []string) (int, error) {
	e, ok := entries[name]
	if !ok {
		stage := "open"
		if init {
			stage = "init"
		}
		return 0, &ConfigError{Msg: fmt.Sprintf("%s dependency for object missing: %q", stage, name)}
	}

	cur := e.openDepth
	if init {
		cur = e.initDepth
	}
	if cur != -1 {
		return cur, nil
	}

	for _, p := range path {
		if p == name {
			stage := "open"
			if init {
				stage = "init"
			}
			cycle := append(append([]string{}, path...), name)
			return 0, &DependencyCycleError{Stage: stage, Path: cycle}
		}
	}
	path = append(path, name)

	deps := e.spec.DependsNames
	if init {
		deps = e.spec.InitDependsNames
	}
	d := 0
	for _, dep := range deps {
		dd, err := depth(entries, dep, init, path)
		if err != nil {
			return 0, err
		}
		if dd+1 > d {
			d = dd + 1
		}
	}
	if init {
		e.initDepth = d
	} else {
		e.openDepth = d
	}
	return d, nil
}

// BuildGraph constructs every enabled object from specs, in init-depth
// order, resolving Depends/RDepends and assigning each to the named worker
// (creating workers lazily), per spec.md §4.5 steps 1-4. It returns the
// constructed objects (in the same init order they were instantiated);
// every worker created or used is recorded in the workers map, keyed by
// name.
func BuildGraph(specs []ObjectSpec, workers map[string]*Worker, newWorker func(name string) *Worker) ([]*Object, error) {
	entries := make(map[string]*depthEntry, len(specs))
	var order []string
	for _, spec := range specs {
		if spec.Disabled {
			continue
		}
		if spec.Name == "" {
			return nil, &ConfigError{Msg: "object with empty name"}
		}
		if _, dup := entries[spec.Name]; dup {
			return nil, &ConfigError{Msg: fmt.Sprintf("duplicate object name %q", spec.Name)}
		}
		s := spec
		if s.Worker == "" {
			s.Worker = "default"
		}
		if s.InitDependsNames == nil {
			s.InitDependsNames = s.DependsNames
		}
		entries[s.Name] = &depthEntry{spec: s, openDepth: -1, initDepth: -1}
		order = append(order, s.Name)
	}
	if len(entries) == 0 {
		return nil, &ConfigError{Msg: "empty object list"}
	}

	maxInit := 0
	for _, name := range order {
		var path []string
		if _, err := depth(entries, name, false, path); err != nil {
			return nil, err
		}
		path = nil
		d, err := depth(entries, name, true, path)
		if err != nil {
			return nil, err
		}
		if d > maxInit {
			maxInit = d
		}
	}

	// Stable init order: group by init depth, preserving config order
	// within a depth level (spec.md §4.5 step 3).
	var initOrder []string
	for i := 0; i <= maxInit; i++ {
		for _, name := range order {
			if entries[name].initDepth == i {
				initOrder = append(initOrder, name)
			}
		}
	}

	byName := make(map[string]*Object, len(entries))
	var objects []*Object
	for _, name := range initOrder {
		e := entries[name]
		ch, base, err := e.spec.New()
		if err != nil {
			return nil, fmt.Errorf("processor: init object %q: %w", name, err)
		}
		obj := newObject(name, ch, base, e.spec.Shutdown, e.spec.Reopen)
		w := workers[e.spec.Worker]
		if w == nil {
			w = newWorker(e.spec.Worker)
			workers[e.spec.Worker] = w
		}
		obj.Worker = w
		w.Objects = append(w.Objects, obj)
		byName[name] = obj
		objects = append(objects, obj)
	}

	// Resolve open-dependencies into Depends/RDepends, mirroring
	// Processor::build_rdepends.
	for _, name := range initOrder {
		e := entries[name]
		o := byName[name]
		seen := make(map[string]bool, len(e.spec.DependsNames))
		for _, dn := range e.spec.DependsNames {
			d, ok := byName[dn]
			if !ok {
				return nil, &ConfigError{Msg: fmt.Sprintf("unknown dependency for %q: %q", name, dn)}
			}
			if d == o {
				return nil, &ConfigError{Msg: fmt.Sprintf("recursive dependency for %q", name)}
			}
			if seen[dn] {
				return nil, &ConfigError{Msg: fmt.Sprintf("duplicate dependency %s -> %s", name, dn)}
			}
			seen[dn] = true
			o.Depends = append(o.Depends, d)
			d.RDepends = append(d.RDepends, o)
		}
	}

	return objects, nil
}

// Stages groups objects into named readiness sets, per spec.md §4.5 step 5.
// If no object declares a Stage, every leaf object (nothing depends on it)
// is swept into an auto-generated "active" stage.
func Stages(objects []*Object, specByName map[string]ObjectSpec) map[string][]*Object {
	stages := make(map[string][]*Object)
	any := false
	for _, o := range objects {
		if s := specByName[o.Name].Stage; s != "" {
			stages[s] = append(stages[s], o)
			any = true
		}
	}
	if any {
		return stages
	}
	leaf := make(map[string]*Object, len(objects))
	for _, o := range objects {
		leaf[o.Name] = o
	}
	for _, o := range objects {
		for _, d := range o.Depends {
			delete(leaf, d.Name)
		}
	}
	names := make([]string, 0, len(leaf))
	for n := range leaf {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		stages["active"] = append(stages["active"], leaf[n])
	}
	return stages
}
