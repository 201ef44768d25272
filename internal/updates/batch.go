// Package updates applies document mutation batches from the update feed to
// an updatable value index.
//
// A batch carries the stored ids (positions, or persistent ids when the index
// uses them) touched by one document transaction. Deletes and replaces are
// resolved first, while the primary table still serves the old values of
// surviving keys; new keys arrive last through a single bulk insert.
package updates

import (
	"context"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/valueindex"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// Batch is the JSON payload of one update feed message.
type Batch struct {
	Insert  map[string][]int `json:"insert,omitempty"`
	Delete  map[string][]int `json:"delete,omitempty"`
	Replace []Replacement    `json:"replace,omitempty"`
}

// Replacement moves ID from the Old value to the New value.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
	ID  int    `json:"id"`
}

// Empty reports whether the batch carries no mutation.
func (b Batch) Empty() bool {
	return len(b.Insert) == 0 && len(b.Delete) == 0 && len(b.Replace) == 0
}

// Validate rejects negative ids before anything touches the index.
func (b Batch) Validate() error {
	for k, ids := range b.Insert {
		if slices.ContainsFunc(ids, negative) {
			return apperr.Newf(apperr.ErrInvalidInput, "negative id inserted under %q", k)
		}
	}
	for k, ids := range b.Delete {
		if slices.ContainsFunc(ids, negative) {
			return apperr.Newf(apperr.ErrInvalidInput, "negative id deleted under %q", k)
		}
	}
	for _, r := range b.Replace {
		if r.ID < 0 {
			return apperr.Newf(apperr.ErrInvalidInput, "negative id %d replaced", r.ID)
		}
	}
	return nil
}

func negative(id int) bool { return id < 0 }

// Stats summarises what Apply did.
type Stats struct {
	Deleted     int
	KeysRemoved int
	Replaced    int
	Inserted    int
}

// Apply runs b against idx and flushes the index. Emptied keys from all
// deletes are removed in one compaction pass before replaces run.
func Apply(ctx context.Context, idx *valueindex.Updatable, b Batch) (Stats, error) {
	var st Stats
	if err := b.Validate(); err != nil {
		return st, err
	}
	if b.Empty() {
		return st, nil
	}

	keys := make([]string, 0, len(b.Delete))
	for k := range b.Delete {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var emptied []int
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return st, apperr.Wrap(apperr.ErrCancelled, err, "applying deletes")
		}
		slot, empty, err := idx.Delete([]byte(k), b.Delete[k])
		if err != nil {
			return st, err
		}
		if slot < 0 {
			continue
		}
		st.Deleted++
		if empty {
			emptied = append(emptied, slot)
		}
	}
	slices.Sort(emptied)
	if err := idx.DeleteKeys(emptied); err != nil {
		return st, err
	}
	st.KeysRemoved = len(emptied)

	for _, r := range b.Replace {
		if err := ctx.Err(); err != nil {
			return st, apperr.Wrap(apperr.ErrCancelled, err, "applying replaces")
		}
		if err := idx.Replace([]byte(r.Old), []byte(r.New), r.ID); err != nil {
			return st, err
		}
		st.Replaced++
	}

	if len(b.Insert) > 0 {
		if err := idx.BatchIndex(b.Insert); err != nil {
			return st, err
		}
		st.Inserted = len(b.Insert)
	}
	return st, idx.Flush()
}
