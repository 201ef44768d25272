package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/redis"
)

// Redis keeps one set per document, named <prefix>doc:<document>, whose
// members are the index names.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(document string) string {
	return r.prefix + "doc:" + document
}

func (r *Redis) MarkIndexed(ctx context.Context, document, index string) error {
	if err := r.client.AddMember(ctx, r.key(document), index); err != nil {
		return fmt.Errorf("marking %s/%s: %w", document, index, err)
	}
	return nil
}

func (r *Redis) ClearIndexed(ctx context.Context, document, index string) error {
	if err := r.client.RemoveMember(ctx, r.key(document), index); err != nil {
		return fmt.Errorf("clearing %s/%s: %w", document, index, err)
	}
	return nil
}

func (r *Redis) IsIndexed(ctx context.Context, document, index string) (bool, error) {
	ok, err := r.client.IsMember(ctx, r.key(document), index)
	if err != nil {
		return false, fmt.Errorf("checking %s/%s: %w", document, index, err)
	}
	return ok, nil
}

func (r *Redis) Indexes(ctx context.Context, document string) ([]string, error) {
	idx, err := r.client.Members(ctx, r.key(document))
	if err != nil {
		return nil, fmt.Errorf("listing indexes of %s: %w", document, err)
	}
	slices.Sort(idx)
	return idx, nil
}

// Forget removes the catalog entries of every document.
func (r *Redis) Forget(ctx context.Context) (int64, error) {
	return r.client.FlushByPattern(ctx, r.prefix+"doc:*")
}
