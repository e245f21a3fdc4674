// Package sizegroup partitions targets by exact byte length so that only
// files sharing a size are ever hashed.
package sizegroup

import "io/fs"

// StatFunc returns metadata for a path without reading its contents
type StatFunc func(path string) (fs.FileInfo, error)

// Group is the ordered set of targets sharing one byte length
type Group struct {
	Size  int64
	Paths []string
}

// Singleton reports whether the group cannot contain a duplicate
func (g Group) Singleton() bool {
	return len(g.Paths) < 2
}

// Baseline is the first path of the group in input order
func (g Group) Baseline() string {
	if len(g.Paths) == 0 {
		return ""
	}
	return g.Paths[0]
}

// Failure records a target whose metadata could not be read
type Failure struct {
	Path string
	Err  error
}

// Partition stats every target and groups them by size.
// Groups are ordered by the first appearance of their size in targets and
// members keep input order, so the result is stable for a given input.
// Targets that fail to stat are returned as failures and left out.
func Partition(targets []string, stat StatFunc) ([]Group, []Failure) {
	index := make(map[int64]int)
	groups := make([]Group, 0)
	var failures []Failure

	for _, target := range targets {
		info, err := stat(target)
		if err != nil {
			failures = append(failures, Failure{Path: target, Err: err})
			continue
		}

		size := info.Size()
		i, ok := index[size]
		if !ok {
			i = len(groups)
			index[size] = i
			groups = append(groups, Group{Size: size})
		}
		groups[i].Paths = append(groups[i].Paths, target)
	}

	return groups, failures
}
