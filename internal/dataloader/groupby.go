package dataloader

import "context"

// GroupByCall performs one upstream call for an entire batch of keys and
// returns the raw list of response items, to be split back to callers by
// BatchByGroup.
type GroupByCall[K comparable] func(ctx context.Context, keys []K) ([]map[string]any, error)

// BatchByGroup adapts a single list-returning upstream call into a BatchFunc
// by grouping the response list on keyField and matching each caller's key
// against it — the GroupBy batching strategy used by HTTP resolvers with a
// non-empty group_by (§4.D, §4.E "Ordering" and "GroupBy batched HTTP"
// paragraphs). gRPC group-by loaders do not use it. keyOf extracts the comparable value from a response
// item that should match a caller's K.
func BatchByGroup[K comparable](call GroupByCall[K], keyOf func(item map[string]any) K, isListField bool) BatchFunc[K, any] {
	return func(ctx context.Context, keys []K) []Result[any] {
		items, err := call(ctx, keys)
		if err != nil {
			results := make([]Result[any], len(keys))
			for i := range results {
				results[i] = Result[any]{Err: err}
			}
			return results
		}

		grouped := make(map[K][]map[string]any)
		for _, item := range items {
			k := keyOf(item)
			grouped[k] = append(grouped[k], item)
		}

		results := make([]Result[any], len(keys))
		for i, k := range keys {
			matches := grouped[k]
			if isListField {
				list := make([]any, len(matches))
				for j, m := range matches {
					list[j] = m
				}
				results[i] = Result[any]{Value: list}
				continue
			}
			if len(matches) == 0 {
				results[i] = Result[any]{Value: nil}
				continue
			}
			results[i] = Result[any]{Value: matches[0]}
		}
		return results
	}
}
