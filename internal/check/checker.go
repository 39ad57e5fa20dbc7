// Package check runs a full address check: clean the input, fetch records and
// the flagged set from a Source, resolve final statuses and persist them.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iDeFi-AI/api-v2/internal/address"
	"github.com/iDeFi-AI/api-v2/internal/backend"
	"github.com/iDeFi-AI/api-v2/internal/logging"
	"github.com/iDeFi-AI/api-v2/internal/risk"
	"github.com/iDeFi-AI/api-v2/pkg/ch"
)

var ErrNoAddresses = errors.New("no valid addresses to check")

const defaultTable = "address_status"

// nowFunc is overridden in tests.
var nowFunc = time.Now

// Options configure a Checker.
type Options struct {
	Chain         string
	Workers       int // resolver goroutines (0 = GOMAXPROCS)
	ClickHouseDSN string
	Table         string
	DryRun        bool // skip persistence
}

// Report is the outcome of one run.
type Report struct {
	RunID    string               `json:"run_id"`
	Chain    string               `json:"chain,omitempty"`
	Records  []risk.AddressRecord `json:"records"`
	Rejected []address.Rejected   `json:"rejected,omitempty"`
	Invalid  []*risk.Error        `json:"invalid,omitempty"`
	Summary  risk.Summary         `json:"summary"`
}

// Checker is safe for concurrent use as long as its Source is.
type Checker struct {
	src  backend.Source
	opts Options
	ch   *ch.Client
}

func New(src backend.Source, opts Options) *Checker {
	if opts.Table == "" {
		opts.Table = defaultTable
	}
	opts.Chain = strings.ToLower(strings.TrimSpace(opts.Chain))
	return &Checker{src: src, opts: opts, ch: ch.New(opts.ClickHouseDSN)}
}

// Run checks inputs end to end. Malformed records from the source do not abort
// the run; they are listed in Report.Invalid.
func (c *Checker) Run(ctx context.Context, inputs []string) (*Report, error) {
	valid, rejected := address.Partition(inputs)
	for _, r := range rejected {
		logger().Debug("address rejected", "input", r.Input, "reason", r.Reason)
	}
	if len(valid) == 0 {
		return nil, ErrNoAddresses
	}
	rep := &Report{RunID: uuid.NewString(), Chain: c.opts.Chain, Rejected: rejected}

	recs, err := c.src.CheckAddresses(ctx, c.opts.Chain, valid)
	if err := rep.absorb(err); err != nil {
		return nil, fmt.Errorf("check addresses: %w", err)
	}
	if err := c.resolve(ctx, rep, recs); err != nil {
		return nil, err
	}
	return rep, nil
}

// ResolveRecords resolves caller-supplied records against the source's flagged
// set, without asking the source to check them first.
func (c *Checker) ResolveRecords(ctx context.Context, records []risk.AddressRecord) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Chain: c.opts.Chain}
	if err := c.resolve(ctx, rep, records); err != nil {
		return nil, err
	}
	return rep, nil
}

// ResolveRecordsJSON decodes a JSON array of records and resolves the valid
// ones. Records that fail to decode are listed in Report.Invalid by their
// position in data; a document that is not an array is an error.
func (c *Checker) ResolveRecordsJSON(ctx context.Context, data []byte) (*Report, error) {
	recs, err := risk.DecodeRecords(data)
	rep := &Report{RunID: uuid.NewString(), Chain: c.opts.Chain}
	if err := rep.absorb(err); err != nil {
		return nil, err
	}
	if len(rep.Invalid) > 0 {
		logger().Warn("records skipped", "run_id", rep.RunID, "invalid", len(rep.Invalid), "valid", len(recs))
	}
	if err := c.resolve(ctx, rep, recs); err != nil {
		return nil, err
	}
	return rep, nil
}

func (c *Checker) resolve(ctx context.Context, rep *Report, recs []risk.AddressRecord) error {
	flagged, err := c.src.FlaggedAddresses(ctx)
	if err != nil {
		return fmt.Errorf("flagged addresses: %w", err)
	}
	resolved, err := risk.ResolveParallel(ctx, recs, flagged, c.opts.Workers)
	if err := rep.absorb(err); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	rep.Records = resolved
	if rep.Records == nil {
		rep.Records = []risk.AddressRecord{}
	}
	rep.Summary = risk.Summarize(resolved)
	logger().Info("check complete",
		"run_id", rep.RunID, "chain", rep.Chain, "flagged", flagged.Len(),
		"total", rep.Summary.Total, "fail", rep.Summary.Fail, "warning", rep.Summary.Warning,
		"rejected", len(rep.Rejected), "invalid", len(rep.Invalid))
	if c.opts.DryRun {
		return nil
	}
	return c.persist(ctx, rep)
}

// absorb keeps per-record failures on the report and returns any other error.
func (r *Report) absorb(err error) error {
	var be *risk.BatchError
	if errors.As(err, &be) {
		r.Invalid = append(r.Invalid, be.Errs...)
		return nil
	}
	return err
}

func (c *Checker) persist(ctx context.Context, rep *Report) error {
	if !c.ch.Enabled() || len(rep.Records) == 0 {
		return nil
	}
	rows := StatusRows(rep.RunID, rep.Chain, nowFunc().UnixMilli(), rep.Records)
	if err := c.ch.InsertJSONEachRow(ctx, c.opts.Table, AsAny(rows)); err != nil {
		return fmt.Errorf("persist statuses: %w", err)
	}
	logger().Debug("statuses persisted", "run_id", rep.RunID, "table", c.opts.Table, "rows", len(rows))
	return nil
}

func logger() *slog.Logger { return logging.Component("check") }
