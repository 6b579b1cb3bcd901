package transfer

import (
	"context"
	"fmt"

	"github.com/devxfer/devxfer/internal/localfs"
	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/validation"
)

// Scanner enumerates a directory tree depth-first. A directory item is always
// emitted before anything below it. Unreadable directories are reported
// through the sink and left out; their siblings are still scanned. Hidden
// entries are kept unless excludeHidden is set.
type Scanner struct {
	tree          Tree
	sink          Sink
	canceller     *Canceller
	logger        *logging.Logger
	excludeHidden bool

	filesFound int
}

// NewScanner creates a scanner over tree.
func NewScanner(tree Tree, sink Sink, canceller *Canceller, logger *logging.Logger, excludeHidden bool) *Scanner {
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if canceller == nil {
		canceller = NewCanceller(nil)
	}
	return &Scanner{
		tree:          tree,
		sink:          sink,
		canceller:     canceller,
		logger:        logger,
		excludeHidden: excludeHidden,
	}
}

// FilesFound returns the number of files discovered so far.
func (s *Scanner) FilesFound() int {
	return s.filesFound
}

// Scan lists root recursively. Relative paths are computed against base.
// A cancelled scan returns what was collected so far.
func (s *Scanner) Scan(ctx context.Context, base, root string) []Item {
	var items []Item
	s.scanDir(ctx, base, root, &items)
	return items
}

func (s *Scanner) scanDir(ctx context.Context, base, dir string, items *[]Item) {
	if s.canceller.Stopped(ctx) {
		return
	}
	s.sink.OnScanProgress(ScanProgress{FilesFound: s.filesFound, CurrentPath: dir})

	entries, err := s.tree.ReadDir(ctx, dir)
	if err != nil {
		if s.canceller.Stopped(ctx) {
			return
		}
		s.logger.Warn().Err(err).Str("path", dir).Msg("Skipping unreadable directory")
		s.sink.OnError(fmt.Errorf("failed to list %s: %w", dir, err), dir)
		return
	}

	for _, entry := range entries {
		if s.canceller.Stopped(ctx) {
			return
		}

		if s.excludeHidden && localfs.IsHiddenName(entry.Name) {
			continue
		}
		full := s.tree.Join(dir, entry.Name)
		if err := validation.ValidateFilename(entry.Name); err != nil {
			s.sink.OnError(fmt.Errorf("invalid entry name in %s: %w", dir, err), full)
			continue
		}

		rel, err := s.tree.Rel(base, full)
		if err != nil {
			s.sink.OnError(fmt.Errorf("failed to compute relative path of %s: %w", full, err), full)
			continue
		}

		switch {
		case entry.Dir:
			*items = append(*items, Item{
				Kind:         KindDirectory,
				SourcePath:   full,
				RelativePath: rel,
				Name:         entry.Name,
				ModTime:      entry.ModTime,
			})
			s.scanDir(ctx, base, full, items)

		case entry.File:
			*items = append(*items, Item{
				Kind:         KindFile,
				SourcePath:   full,
				RelativePath: rel,
				Name:         entry.Name,
				Size:         entry.Size,
				ModTime:      entry.ModTime,
			})
			s.filesFound++
			s.sink.OnScanProgress(ScanProgress{FilesFound: s.filesFound, CurrentPath: full})

		default:
			s.logger.Debug().Str("path", full).Msg("Skipping special file")
		}
	}
}
