package metrics

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// GridCandidate is one evaluated hyperparameter combination.
type GridCandidate struct {
	Params map[string]interface{} `json:"params"`
	Result *CVResult              `json:"result"`
}

// GridSearchResult holds every candidate and the winner by mean score.
type GridSearchResult struct {
	Best       GridCandidate   `json:"best"`
	Candidates []GridCandidate `json:"candidates"`
}

// GridSearch cross-validates every combination of the grid's values and
// returns the one with the highest mean score. Combinations are
// enumerated in sorted key order so results are reproducible; ties break
// toward the earlier combination.
func GridSearch(ctx context.Context, grid map[string][]interface{},
	factory func(hyperparams map[string]interface{}) (ScorableEstimator, error),
	X, y mat.Matrix, splitter Splitter) (*GridSearchResult, error) {

	const op = "metrics.GridSearch"
	if len(grid) == 0 {
		return nil, errors.NewInputError(op, "empty parameter grid")
	}

	keys := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) == 0 {
			return nil, errors.NewHyperparameterError("grid_search", k, "no candidate values", nil)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combinations := enumerate(keys, grid)
	result := &GridSearchResult{Candidates: make([]GridCandidate, 0, len(combinations))}
	for _, combo := range combinations {
		// Reject bad combinations up front; a factory that accepts a
		// combination once must keep accepting it, so the per-fold calls
		// below cannot fail differently.
		if _, err := factory(combo); err != nil {
			return nil, errors.Wrapf(err, "grid combination %v", combo)
		}

		cv, err := CrossValidate(ctx, func() ScorableEstimator {
			est, _ := factory(combo)
			return est
		}, X, y, splitter)
		if err != nil {
			return nil, errors.Wrapf(err, "grid combination %v", combo)
		}

		candidate := GridCandidate{Params: combo, Result: cv}
		result.Candidates = append(result.Candidates, candidate)
		if len(result.Candidates) == 1 || cv.Mean > result.Best.Result.Mean {
			result.Best = candidate
		}
	}
	return result, nil
}

func enumerate(keys []string, grid map[string][]interface{}) []map[string]interface{} {
	out := []map[string]interface{}{{}}
	for _, key := range keys {
		var next []map[string]interface{}
		for _, combo := range out {
			for _, value := range grid[key] {
				extended := make(map[string]interface{}, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[key] = value
				next = append(next, extended)
			}
		}
		out = next
	}
	return out
}
