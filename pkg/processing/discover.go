package processing

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemstart/many-deploy/pkg/api"
)

// DiscoverPlans finds plan files under root matching pattern (a doublestar
// glob relative to root, api.DefaultPlanPattern if empty) up to maxDepth
// directories deep. A maxDepth of -1 means unlimited. 0 means only root
// itself. Results are sorted by path depth (parents before children).
func DiscoverPlans(root, pattern string, maxDepth int) ([]*api.Plan, error) {
	if pattern == "" {
		pattern = api.DefaultPlanPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid plan pattern %q", pattern)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	paths, err := collectPlanPaths(absRoot, pattern, maxDepth)
	if err != nil {
		return nil, err
	}

	return loadAll(paths)
}

func collectPlanPaths(absRoot, pattern string, maxDepth int) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(absRoot), pattern)
	if err != nil {
		return nil, fmt.Errorf("matching %q under %s: %w", pattern, absRoot, err)
	}

	var rels []string
	for _, rel := range matches {
		if maxDepth >= 0 && pathDepth(filepath.Dir(filepath.FromSlash(rel))) > maxDepth {
			continue
		}
		info, err := os.Stat(filepath.Join(absRoot, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}
		if info.IsDir() {
			continue
		}
		rels = append(rels, rel)
	}

	slices.SortFunc(rels, func(a, b string) int {
		return cmp.Or(pathDepth(a)-pathDepth(b), strings.Compare(a, b))
	})

	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(absRoot, filepath.FromSlash(rel))
	}
	return paths, nil
}

func loadAll(paths []string) ([]*api.Plan, error) {
	plans := make([]*api.Plan, 0, len(paths))
	for _, p := range paths {
		plan, err := api.LoadPlan(p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
