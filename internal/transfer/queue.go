package transfer

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/validation"
)

var (
	// ErrInvalidSelection is returned for selections that cannot be queued at all.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrDuplicateDestination is reported for a selection whose name is
	// already taken by an earlier selection.
	ErrDuplicateDestination = errors.New("destination already queued")
)

// QueueBuilder turns selections into a queue.
type QueueBuilder struct {
	tree      Tree
	scanner   *Scanner
	sink      Sink
	canceller *Canceller
	logger    *logging.Logger
}

// NewQueueBuilder creates a builder reading from tree.
func NewQueueBuilder(tree Tree, sink Sink, canceller *Canceller, logger *logging.Logger, excludeHidden bool) *QueueBuilder {
	scanner := NewScanner(tree, sink, canceller, logger, excludeHidden)
	return &QueueBuilder{
		tree:      tree,
		scanner:   scanner,
		sink:      scanner.sink,
		canceller: scanner.canceller,
		logger:    scanner.logger,
	}
}

// Build expands selections in order. A directory selection contributes
// itself and everything below it, with relative paths rooted at its own
// name. A file selection contributes one item named after the file.
//
// Selections that cannot be read are reported through the sink and skipped,
// as are selections whose name was already queued by an earlier one. Scanned
// items whose relative path was already queued are dropped, so overlapping
// selections never transfer the same destination twice.
// A cancelled build returns the partial queue.
func (b *QueueBuilder) Build(ctx context.Context, selections []Selection) (Queue, error) {
	for _, sel := range selections {
		if sel.Path == "" {
			return Queue{}, fmt.Errorf("%w: empty path", ErrInvalidSelection)
		}
		if sel.Kind != KindFile && sel.Kind != KindDirectory {
			return Queue{}, fmt.Errorf("%w: unknown kind %q for %s", ErrInvalidSelection, sel.Kind, sel.Path)
		}
	}

	var q Queue
	seen := make(map[string]bool)
	add := func(item Item) bool {
		if seen[item.RelativePath] {
			b.logger.Debug().Str("path", item.RelativePath).Msg("Dropping duplicate queue entry")
			return false
		}
		seen[item.RelativePath] = true
		q.Items = append(q.Items, item)
		return true
	}
	// addSelection queues the top-level item of a selection. A collision
	// means two selections share a destination name; the later one is skipped.
	addSelection := func(item Item) bool {
		if add(item) {
			return true
		}
		b.sink.OnError(fmt.Errorf("%w: %s is already queued as %s", ErrDuplicateDestination, item.SourcePath, item.RelativePath), item.SourcePath)
		return false
	}

	for _, sel := range selections {
		if b.canceller.Stopped(ctx) {
			break
		}

		p := b.tree.Clean(sel.Path)
		name := b.tree.Base(p)
		if err := validation.ValidateFilename(name); err != nil {
			b.sink.OnError(fmt.Errorf("cannot transfer %s: %w", p, err), p)
			continue
		}

		entry, err := b.tree.Stat(ctx, p)
		if err != nil {
			if b.canceller.Stopped(ctx) {
				break
			}
			b.logger.Warn().Err(err).Str("path", p).Msg("Skipping unreadable selection")
			b.sink.OnError(fmt.Errorf("failed to stat %s: %w", p, err), p)
			continue
		}

		switch sel.Kind {
		case KindDirectory:
			if !entry.Dir {
				b.sink.OnError(fmt.Errorf("%s is not a directory", p), p)
				continue
			}
			if !addSelection(Item{
				Kind:         KindDirectory,
				SourcePath:   p,
				RelativePath: name,
				Name:         name,
				ModTime:      entry.ModTime,
			}) {
				continue
			}
			for _, item := range b.scanner.Scan(ctx, b.tree.Dir(p), p) {
				add(item)
			}

		case KindFile:
			if !entry.File {
				b.sink.OnError(fmt.Errorf("%s is not a regular file", p), p)
				continue
			}
			addSelection(Item{
				Kind:         KindFile,
				SourcePath:   p,
				RelativePath: name,
				Name:         name,
				Size:         entry.Size,
				ModTime:      entry.ModTime,
			})
		}
	}

	q.computeTotals()
	return q, nil
}

// QueueFromFailed rebuilds a queue from the failed tasks of an earlier run.
// Missing ancestor directories are queued ahead of each file so the
// parent-before-child order still holds.
func QueueFromFailed(tree Tree, failed []FailedTask, sink Sink) Queue {
	if sink == nil {
		sink = nopSink{}
	}

	var q Queue
	seen := make(map[string]bool)
	for _, ft := range failed {
		item := ft.Item
		if err := validation.ValidateRelativePath(item.RelativePath); err != nil {
			sink.OnError(err, item.SourcePath)
			continue
		}
		if item.Kind != KindFile && item.Kind != KindDirectory {
			sink.OnError(fmt.Errorf("%w: unknown kind %q", ErrInvalidSelection, item.Kind), item.SourcePath)
			continue
		}

		// Ancestors, outermost first. Source paths are derived by walking up
		// from the item's own source path.
		var ancestors []Item
		src := item.SourcePath
		for rel := path.Dir(item.RelativePath); rel != "."; rel = path.Dir(rel) {
			src = tree.Dir(src)
			ancestors = append([]Item{{
				Kind:         KindDirectory,
				SourcePath:   src,
				RelativePath: rel,
				Name:         path.Base(rel),
			}}, ancestors...)
		}
		for _, a := range ancestors {
			if !seen[a.RelativePath] {
				seen[a.RelativePath] = true
				q.Items = append(q.Items, a)
			}
		}
		if !seen[item.RelativePath] {
			seen[item.RelativePath] = true
			q.Items = append(q.Items, item)
		}
	}

	q.computeTotals()
	return q
}
