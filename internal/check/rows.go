package check

import (
	"sort"

	"github.com/iDeFi-AI/api-v2/internal/risk"
)

// StatusRow is the ClickHouse row shape for one resolved address.
type StatusRow struct {
	RunID       string   `json:"run_id"`
	Chain       string   `json:"chain"`
	Address     string   `json:"address"`
	Status      string   `json:"status"`
	Description string   `json:"description"`
	Grandparent string   `json:"grandparent"`
	Parents     []string `json:"parents"`
	Children    []string `json:"children"`
	CheckedAt   int64    `json:"checked_at"` // unix millis UTC
}

// StatusRows flattens records into rows. Children lists are concatenated in
// the parents' order, then the remaining keys in sorted order.
func StatusRows(runID, chain string, checkedAt int64, recs []risk.AddressRecord) []StatusRow {
	out := make([]StatusRow, 0, len(recs))
	for _, r := range recs {
		out = append(out, StatusRow{
			RunID:       runID,
			Chain:       chain,
			Address:     r.Address,
			Status:      r.Status.String(),
			Description: r.Description,
			Grandparent: r.Grandparent,
			Parents:     nonNil(r.Parents),
			Children:    flattenChildren(r),
			CheckedAt:   checkedAt,
		})
	}
	return out
}

func flattenChildren(r risk.AddressRecord) []string {
	out := []string{}
	seen := make(map[string]bool, len(r.Children))
	for _, p := range r.Parents {
		if kids, ok := r.Children[p]; ok && !seen[p] {
			seen[p] = true
			out = append(out, kids...)
		}
	}
	for _, k := range sortedKeys(r.Children) {
		if !seen[k] {
			out = append(out, r.Children[k]...)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

// AsAny converts a typed slice into []any for generic encoders.
func AsAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}

func sortedKeys(m risk.Children) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
