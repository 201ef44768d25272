package valueindex

import (
	"bytes"
	"container/heap"
	"context"
	"errors"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// mergeRuns performs the k-way merge of sorted runs into w. Runs that share
// a key contribute the union of their ids, sorted and deduplicated.
func mergeRuns(ctx context.Context, runs []*runCursor, w *indexWriter, checkInterval int) error {
	h := &runHeap{}
	for _, c := range runs {
		ok, err := c.next()
		if err != nil {
			return err
		}
		if ok {
			h.runs = append(h.runs, c)
		}
	}
	heap.Init(h)

	var (
		key []byte
		ids []int
	)
	for merged := 0; h.Len() > 0; merged++ {
		if merged%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return apperr.Wrap(apperr.ErrCancelled, err, "merging runs")
			}
		}
		key = append(key[:0], h.runs[0].key...)
		ids = ids[:0]
		for h.Len() > 0 && bytes.Equal(h.runs[0].key, key) {
			c := h.runs[0]
			ids = append(ids, c.ids...)
			ok, err := c.next()
			if err != nil {
				return err
			}
			if ok {
				heap.Fix(h, 0)
			} else {
				heap.Pop(h)
			}
		}
		if err := w.add(sortedUnique(ids)); err != nil {
			return err
		}
	}
	return nil
}

func closeRuns(runs []*runCursor) error {
	var errs []error
	for _, c := range runs {
		errs = append(errs, c.close())
	}
	return errors.Join(errs...)
}

type runHeap struct {
	runs []*runCursor
}

func (h runHeap) Len() int { return len(h.runs) }

func (h runHeap) Less(i, j int) bool {
	if c := bytes.Compare(h.runs[i].key, h.runs[j].key); c != 0 {
		return c < 0
	}
	return h.runs[i].seq < h.runs[j].seq
}

func (h runHeap) Swap(i, j int) { h.runs[i], h.runs[j] = h.runs[j], h.runs[i] }

func (h *runHeap) Push(x interface{}) {
	h.runs = append(h.runs, x.(*runCursor))
}

func (h *runHeap) Pop() interface{} {
	old := h.runs
	n := len(old)
	c := old[n-1]
	h.runs = old[:n-1]
	return c
}
