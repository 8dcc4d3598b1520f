// Package chunker writes content to the workspace in request-sized
// batches. A write larger than one request is split greedily, submitted
// strictly in order, and can be resumed from a Checkpoint after a failure
// without resubmitting anything already committed.
package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/telemetry"
)

// requestOverhead approximates the bytes of a write request outside its
// blocks.
const requestOverhead = 64

// Limits bounds a single write request.
type Limits struct {
	MaxChildren     int `yaml:"max_children"`
	MaxBlocks       int `yaml:"max_blocks"`
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
}

// DefaultLimits returns the limits enforced by the workspace API.
func DefaultLimits() Limits {
	return Limits{MaxChildren: 100, MaxBlocks: 1000, MaxPayloadBytes: 500_000}
}

func (l *Limits) defaults() {
	d := DefaultLimits()
	if l.MaxChildren <= 0 {
		l.MaxChildren = d.MaxChildren
	}
	if l.MaxBlocks <= 0 {
		l.MaxBlocks = d.MaxBlocks
	}
	if l.MaxPayloadBytes <= 0 {
		l.MaxPayloadBytes = d.MaxPayloadBytes
	}
}

// Appender is the part of the workspace API the chunker writes through.
type Appender interface {
	AppendChildren(ctx context.Context, parentID string, blocks []notion.Block, after string) (notion.AppendResult, error)
}

// Report summarises committed work.
type Report struct {
	// Units counts fully written units.
	Units int `json:"units"`

	// Blocks counts committed blocks, table rows included.
	Blocks int `json:"blocks"`

	// Requests counts write requests issued, failed ones included.
	Requests int `json:"requests"`

	// BlockIDs lists the top-level blocks created, in document order.
	BlockIDs []string `json:"block_ids,omitempty"`
}

// Batch is passed to Options.OnBatch after every committed request.
type Batch struct {
	Request int
	Units   int
	Blocks  int
	Total   int
}

// Options tunes a single Append.
type Options struct {
	// After anchors the first batch after an existing child of the parent.
	// Empty appends at the end.
	After string

	// Resume continues a previously interrupted write. It takes precedence
	// over After.
	Resume *Checkpoint

	OnBatch func(Batch)
}

// Chunker splits writes into batches.
type Chunker struct {
	api     Appender
	limits  Limits
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLimits overrides the request limits. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(c *Chunker) { c.limits = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chunker) { c.logger = l }
}

// WithMetrics records batch outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Chunker) { c.metrics = m }
}

// New returns a Chunker writing through api.
func New(api Appender, opts ...Option) *Chunker {
	c := &Chunker{api: api, limits: DefaultLimits()}
	for _, o := range opts {
		o(c)
	}
	c.limits.defaults()
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Limits returns the effective limits.
func (c *Chunker) Limits() Limits { return c.limits }

// Append writes units under parentID in order. Every unit is validated
// before the first request. When a request fails, or the context's
// checkpoint signal fires between batches, Append returns a *PartialError
// carrying the checkpoint to resume from; batches already committed stay
// in place.
func (c *Chunker) Append(ctx context.Context, parentID string, units []Unit, opts Options) (Report, error) {
	if err := c.validate(units); err != nil {
		return Report{}, err
	}
	r := &run{c: c, parentID: parentID, units: units, onBatch: opts.OnBatch, after: opts.After}
	if cp := opts.Resume; cp != nil {
		if err := r.resume(*cp); err != nil {
			return Report{}, err
		}
	}

	for r.next < len(units) {
		if err := checkpoint.Check(ctx); err != nil {
			return r.report, r.fail(err)
		}
		var err error
		if r.table != nil {
			err = r.appendRows(ctx)
		} else {
			err = r.appendBatch(ctx)
		}
		if err != nil {
			c.logger.Warn("chunker: write stopped",
				"parent", parentID,
				"units", r.report.Units,
				"total", len(units),
				"error", err,
			)
			return r.report, r.fail(err)
		}
	}
	c.logger.Debug("chunker: write complete",
		"parent", parentID,
		"units", r.report.Units,
		"blocks", r.report.Blocks,
		"requests", r.report.Requests,
	)
	return r.report, nil
}

// TableOptions tunes CreateTable.
type TableOptions struct {
	HasColumnHeader bool
	HasRowHeader    bool
	After           string
	Resume          *Checkpoint
	OnBatch         func(Batch)
}

// CreateTable writes a single table, splitting its rows across requests
// when they exceed one request.
func (c *Chunker) CreateTable(ctx context.Context, parentID string, rows [][]string, opts TableOptions) (Report, error) {
	if err := ValidateTable(rows); err != nil {
		return Report{}, err
	}
	return c.Append(ctx, parentID,
		[]Unit{TableUnit(rows, opts.HasColumnHeader, opts.HasRowHeader)},
		Options{After: opts.After, Resume: opts.Resume, OnBatch: opts.OnBatch},
	)
}

// ValidateTable rejects empty, single-cell and non-rectangular tables.
func ValidateTable(rows [][]string) error {
	if len(rows) == 0 {
		return &ValidationError{Unit: 0, Reason: "table has no rows"}
	}
	width := len(rows[0])
	if width == 0 {
		return &ValidationError{Unit: 0, Reason: "table has no columns"}
	}
	for i, row := range rows {
		if len(row) != width {
			return &ValidationError{Unit: 0, Reason: fmt.Sprintf("row %d has %d cells, want %d", i, len(row), width)}
		}
	}
	if len(rows)*width < 2 {
		return &ValidationError{Unit: 0, Reason: "a table needs at least two cells"}
	}
	return nil
}

func (c *Chunker) validate(units []Unit) error {
	for i, u := range units {
		switch u.Kind {
		case KindTable:
			if len(u.Rows) == 0 || len(u.Rows[0]) == 0 {
				return &ValidationError{Unit: i, Reason: "table is empty"}
			}
			for j, row := range u.Rows {
				if len(row) != len(u.Rows[0]) {
					return &ValidationError{Unit: i, Reason: fmt.Sprintf("table row %d has %d cells, want %d", j, len(row), len(u.Rows[0]))}
				}
				if c.fitRows(u.Rows[j:j+1]) == 0 {
					return &ValidationError{Unit: i, Reason: fmt.Sprintf("table row %d exceeds the request size limit", j)}
				}
			}
			if c.fitTable(u, 0, 0, requestOverhead) == 0 {
				return &ValidationError{Unit: i, Reason: "table does not fit in a single request"}
			}
		case KindParagraph, KindHeading, KindBulleted, KindNumbered, KindToDo, KindQuote, KindCode, KindDivider:
			if requestOverhead+blockSize(u.block()) > c.limits.MaxPayloadBytes {
				return &ValidationError{Unit: i, Reason: "content exceeds the request size limit"}
			}
		default:
			return &ValidationError{Unit: i, Reason: fmt.Sprintf("unknown kind %q", u.Kind)}
		}
	}
	return nil
}

// fitTable returns how many leading rows of u fit in a request that
// already holds children top-level blocks, total blocks and bytes. Zero
// means the table cannot start in this request.
func (c *Chunker) fitTable(u Unit, children, total, bytes int) int {
	if children+1 > c.limits.MaxChildren || total+1 > c.limits.MaxBlocks {
		return 0
	}
	total++
	bytes += blockSize(notion.Table(nil, u.HasColumnHeader, u.HasRowHeader)) + 32
	k := 0
	for _, row := range u.Rows {
		sz := blockSize(notion.TableRow(row))
		if k+1 > c.limits.MaxChildren || total+1 > c.limits.MaxBlocks || bytes+sz > c.limits.MaxPayloadBytes {
			break
		}
		k++
		total++
		bytes += sz
	}
	return k
}

// fitRows returns how many leading rows fit in a request of their own.
func (c *Chunker) fitRows(rows [][]string) int {
	bytes := requestOverhead
	k := 0
	for _, row := range rows {
		sz := blockSize(notion.TableRow(row))
		if k+1 > c.limits.MaxChildren || k+1 > c.limits.MaxBlocks || bytes+sz > c.limits.MaxPayloadBytes {
			break
		}
		k++
		bytes += sz
	}
	return k
}

func blockSize(b notion.Block) int {
	data, err := json.Marshal(b)
	if err != nil {
		return 0
	}
	return len(data) + 1
}
