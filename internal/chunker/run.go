package chunker

import (
	"context"
	"fmt"

	"github.com/pagesmith/pagesmith/internal/notion"
)

// run is the state of one Append call.
type run struct {
	c        *Chunker
	parentID string
	units    []Unit
	onBatch  func(Batch)

	next   int
	after  string
	table  *TableCursor
	report Report
}

type entry struct {
	unit   int
	rows   int
	split  bool
	blocks int
}

func (r *run) resume(cp Checkpoint) error {
	if cp.ParentID != r.parentID {
		return &ValidationError{Unit: -1, Reason: fmt.Sprintf("checkpoint belongs to parent %s, not %s", cp.ParentID, r.parentID)}
	}
	if cp.NextUnit < 0 || cp.NextUnit > len(r.units) {
		return &ValidationError{Unit: -1, Reason: fmt.Sprintf("checkpoint unit %d out of range", cp.NextUnit)}
	}
	if cp.Table != nil {
		if cp.NextUnit == len(r.units) || r.units[cp.NextUnit].Kind != KindTable {
			return &ValidationError{Unit: cp.NextUnit, Reason: "checkpoint points into a table, but the unit is not a table"}
		}
		if cp.Table.BlockID == "" || cp.Table.NextRow < 1 || cp.Table.NextRow > len(r.units[cp.NextUnit].Rows) {
			return &ValidationError{Unit: cp.NextUnit, Reason: "checkpoint table cursor is invalid"}
		}
		t := *cp.Table
		r.table = &t
	}
	r.next = cp.NextUnit
	r.after = cp.After
	if r.table != nil && r.table.NextRow == len(r.units[r.next].Rows) {
		r.table = nil
		r.next++
	}
	return nil
}

func (r *run) checkpoint() Checkpoint {
	cp := Checkpoint{ParentID: r.parentID, NextUnit: r.next, After: r.after}
	if r.table != nil {
		t := *r.table
		cp.Table = &t
	}
	return cp
}

func (r *run) fail(cause error) error {
	return &PartialError{Checkpoint: r.checkpoint(), Report: r.report, Total: len(r.units), Cause: cause}
}

// appendBatch sends the next greedy batch of top-level blocks. A table
// that does not fit whole starts its own batch and carries as many rows
// as fit. The remaining rows are sent by appendRows.
func (r *run) appendBatch(ctx context.Context) error {
	lim := r.c.limits
	var (
		blocks  []notion.Block
		entries []entry
		total   int
		bytes   = requestOverhead
	)
	for j := r.next; j < len(r.units); j++ {
		u := r.units[j]
		if u.Kind == KindTable {
			k := r.c.fitTable(u, len(blocks), total, bytes)
			if k < len(u.Rows) && len(blocks) > 0 {
				break
			}
			b := u.tableBlock(k)
			blocks = append(blocks, b)
			entries = append(entries, entry{unit: j, rows: k, split: k < len(u.Rows), blocks: 1 + k})
			total += 1 + k
			bytes += blockSize(b)
			if k < len(u.Rows) {
				break
			}
			continue
		}
		b := u.block()
		sz := blockSize(b)
		if len(blocks)+1 > lim.MaxChildren || total+1 > lim.MaxBlocks || bytes+sz > lim.MaxPayloadBytes {
			break
		}
		blocks = append(blocks, b)
		entries = append(entries, entry{unit: j, blocks: 1})
		total++
		bytes += sz
	}

	res, err := r.c.api.AppendChildren(ctx, r.parentID, blocks, r.after)
	r.report.Requests++
	r.c.metrics.WriteBatch(err == nil)

	n := len(entries)
	if err != nil || len(res.IDs) < n {
		n = min(len(res.IDs), n)
	}
	for k := range n {
		e := entries[k]
		id := res.IDs[k]
		r.after = id
		r.report.BlockIDs = append(r.report.BlockIDs, id)
		r.report.Blocks += e.blocks
		if e.split {
			r.next = e.unit
			r.table = &TableCursor{BlockID: id, NextRow: e.rows}
			continue
		}
		r.next = e.unit + 1
		r.report.Units++
	}
	if err != nil {
		return fmt.Errorf("chunker: appending to %s: %w", r.parentID, err)
	}
	if n < len(entries) {
		return fmt.Errorf("chunker: appending to %s: %w: %w: got %d block ids for %d blocks",
			r.parentID, notion.ErrPermanent, notion.ErrMalformedResponse, len(res.IDs), len(entries))
	}
	r.c.logger.Debug("chunker: batch committed",
		"parent", r.parentID,
		"request", r.report.Requests,
		"blocks", total,
	)
	r.notify()
	return nil
}

// appendRows continues a table created by an earlier batch.
func (r *run) appendRows(ctx context.Context) error {
	u := r.units[r.next]
	tableID := r.table.BlockID
	rows := u.Rows[r.table.NextRow:]
	n := r.c.fitRows(rows)

	res, err := r.c.api.AppendChildren(ctx, tableID, rowBlocks(rows[:n]), "")
	r.report.Requests++
	r.c.metrics.WriteBatch(err == nil)

	committed := n
	if err != nil {
		committed = min(len(res.IDs), n)
	}
	r.report.Blocks += committed
	r.table.NextRow += committed
	if r.table.NextRow >= len(u.Rows) {
		r.table = nil
		r.next++
		r.report.Units++
	}
	if err != nil {
		return fmt.Errorf("chunker: appending rows to table %s: %w", tableID, err)
	}
	r.notify()
	return nil
}

func (r *run) notify() {
	if r.onBatch == nil {
		return
	}
	r.onBatch(Batch{
		Request: r.report.Requests,
		Units:   r.report.Units,
		Blocks:  r.report.Blocks,
		Total:   len(r.units),
	})
}
