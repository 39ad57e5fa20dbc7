// Package risk resolves the final risk status of addresses from their declared
// relations (grandparent, parents, children) and a set of flagged addresses.
//
// Resolution only ever tightens a status: FAIL > WARNING > PASS. A flagged
// grandparent fails the record outright; a flagged parent or child raises it to
// WARNING. Everything here is pure and safe for concurrent use.
package risk

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Resolve returns resolved copies of the valid records in input order.
// Records that fail validation are skipped and reported together in a
// *BatchError; the rest of the batch is still resolved.
func Resolve(records []AddressRecord, flagged FlaggedSet) ([]AddressRecord, error) {
	out := make([]AddressRecord, len(records))
	errs := make([]*Error, len(records))
	resolveRange(records, flagged, out, errs, 0, len(records))
	return compact(out, errs)
}

// ResolveParallel is Resolve spread over at most workers goroutines. Output
// order and reported errors are identical to Resolve. workers <= 0 uses
// GOMAXPROCS.
func ResolveParallel(ctx context.Context, records []AddressRecord, flagged FlaggedSet, workers int) ([]AddressRecord, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	n := len(records)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Resolve(records, flagged)
	}

	out := make([]AddressRecord, n)
	errs := make([]*Error, n)
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo := lo // per-iteration copy (go1.22 loopvar semantics)
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each goroutine owns out[lo:hi] and errs[lo:hi].
			resolveRange(records, flagged, out, errs, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return compact(out, errs)
}

func resolveRange(records []AddressRecord, flagged FlaggedSet, out []AddressRecord, errs []*Error, lo, hi int) {
	for i := lo; i < hi; i++ {
		if err := records[i].validate(i); err != nil {
			errs[i] = err
			continue
		}
		rec := records[i].clone()
		rec.Status = resolveStatus(rec, flagged)
		out[i] = rec
	}
}

// resolveStatus applies the escalation rules to a single record.
func resolveStatus(r AddressRecord, flagged FlaggedSet) Status {
	status := r.Status
	if r.Grandparent != "" && flagged.Has(r.Grandparent) {
		return StatusFail
	}
	if status == StatusFail {
		return status
	}
	for _, p := range r.Parents {
		if flagged.Has(p) {
			return status.escalate(StatusWarning)
		}
	}
	if status == StatusWarning {
		return status
	}
	for _, kids := range r.Children {
		for _, c := range kids {
			if flagged.Has(c) {
				return StatusWarning
			}
		}
	}
	return status
}

func compact(out []AddressRecord, errs []*Error) ([]AddressRecord, error) {
	batch := &BatchError{}
	res := out[:0]
	for i := range out {
		if errs[i] != nil {
			batch.Errs = append(batch.Errs, errs[i])
			continue
		}
		res = append(res, out[i])
	}
	return res, batch.orNil()
}
