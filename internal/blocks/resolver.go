package blocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agini/astro-notion-blog/internal/notion"
)

// ChildLister lists the direct children of a page or block. The Notion
// client satisfies this; tests substitute a fake.
type ChildLister interface {
	ListBlockChildren(ctx context.Context, blockID string) ([]notion.RawBlock, error)
}

// SnapshotStore serves previously materialized block trees by container id.
// It is an explicit override path for offline builds, not a default.
type SnapshotStore interface {
	Load(containerID string) ([]Block, bool)
}

// Resolver turns a container id into its fully populated block tree.
// Sibling subtrees are resolved concurrently up to a bound; the order of a
// container's direct children always matches the listing order.
type Resolver struct {
	lister      ChildLister
	snapshots   SnapshotStore
	concurrency int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSnapshots short-circuits top-level resolution when a materialized
// snapshot exists for the requested container.
func WithSnapshots(s SnapshotStore) ResolverOption {
	return func(r *Resolver) { r.snapshots = s }
}

// WithConcurrency bounds concurrent subtree resolution per container.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a resolver over the given lister.
func NewResolver(lister ChildLister, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lister:      lister,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// visitPath is the immutable set of container ids on the active call path,
// kept as a parent-linked list so concurrent sibling branches never share
// mutable state.
type visitPath struct {
	id     string
	parent *visitPath
}

func (p *visitPath) contains(id string) bool {
	for n := p; n != nil; n = n.parent {
		if n.id == id {
			return true
		}
	}
	return false
}

// ResolveTree fetches and recursively resolves all children of a container.
// Failed subtrees are left with empty Children and their errors joined into
// the returned error; siblings are unaffected, so a non-nil error can come
// back alongside a usable tree.
func (r *Resolver) ResolveTree(ctx context.Context, containerID string) ([]Block, error) {
	if r.snapshots != nil {
		if bs, ok := r.snapshots.Load(containerID); ok {
			slog.Debug("serving block tree from snapshot", "container_id", containerID)
			return bs, nil
		}
	}
	return r.resolve(ctx, containerID, nil)
}

func (r *Resolver) resolve(ctx context.Context, containerID string, path *visitPath) ([]Block, error) {
	// A revisited id means a synced-block reference cycle; yield an empty
	// subtree instead of recursing forever.
	if path.contains(containerID) {
		slog.Warn("synced block reference cycle detected", "container_id", containerID)
		return nil, nil
	}

	raws, err := r.lister.ListBlockChildren(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return []Block{}, nil
	}

	children := make([]Block, len(raws))
	for i, raw := range raws {
		children[i] = Build(raw)
	}

	next := &visitPath{id: containerID, parent: path}

	var (
		mu      sync.Mutex
		subErrs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for i := range children {
		child := &children[i]
		if !needsResolution(child) {
			continue
		}
		g.Go(func() error {
			sub, err := r.resolveChild(ctx, child, next)
			// Whatever resolved before the failure is kept; siblings
			// continue either way.
			child.Children = sub
			if err != nil {
				mu.Lock()
				subErrs = append(subErrs, fmt.Errorf("block %s (%s): %w", child.ID, child.Kind, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return children, errors.Join(subErrs...)
}

// resolveChild recurses into one built child according to its kind.
func (r *Resolver) resolveChild(ctx context.Context, b *Block, path *visitPath) ([]Block, error) {
	if b.Kind == KindSyncedBlock {
		// A reference resolves through the origin's id; an origin
		// resolves its own children like any other container.
		target := b.ID
		if b.SyncedFrom != "" {
			target = b.SyncedFrom
		}
		return r.resolve(ctx, target, path)
	}
	return r.resolve(ctx, b.ID, path)
}

// needsResolution reports whether a built child owns a subtree to fetch.
// Column lists recurse to columns and columns to their blocks; tables
// recurse to rows (cells arrive inline on the row payload). A synced-block
// reference is a container even when its local has-children flag is unset,
// because its children live under the referenced id.
func needsResolution(b *Block) bool {
	if b.Kind == KindSyncedBlock {
		return b.SyncedFrom != "" || b.HasChildren
	}
	if !b.HasChildren {
		return false
	}
	switch b.Kind {
	case KindParagraph, KindHeading1, KindHeading2, KindHeading3,
		KindBulletedListItem, KindNumberedListItem, KindToDo, KindToggle,
		KindQuote, KindCallout,
		KindColumnList, KindColumn, KindTable:
		return true
	}
	return false
}
