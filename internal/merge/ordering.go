package merge

import "sort"

// TopologicalOrder returns WP ids ordered so that every WP appears after
// all of its dependencies, ties broken lexicographically by id (spec
// §4.E ordering rule). deps maps each WP id to its declared dependency
// ids; only ids present as keys are considered eligible for merging
// (callers filter to WPs in a terminal success lane before calling this).
func TopologicalOrder(deps map[string][]string) ([]string, error) {
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			return errCycle(id)
		}
		visited[id] = 1
		depIDs := append([]string{}, deps[id]...)
		sort.Strings(depIDs)
		for _, dep := range depIDs {
			if _, ok := deps[dep]; !ok {
				continue // dependency outside the mergeable set (already merged or not part of this batch)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		visited[id] = 2
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func errCycle(id string) error {
	return &cycleError{id: id}
}

type cycleError struct{ id string }

func (e *cycleError) Error() string {
	return "dependency cycle detected at work package " + e.id
}
