package metadata

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned by a lookup that was superseded or discarded before it finished.
// Its result must not be applied.
var ErrStale = errors.New("lookup superseded")

// Lookup runs one extraction at a time for a song form.
// Starting a new lookup or discarding the form cancels the one in flight.
type Lookup struct {
	extractor Extractor

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewLookup creates a lookup backed by extractor
func NewLookup(extractor Extractor) *Lookup {
	return &Lookup{extractor: extractor}
}

// Do extracts song info for mediaURL, cancelling any earlier lookup
func (l *Lookup) Do(ctx context.Context, mediaURL string) (SongInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	seq := l.seq
	l.cancel = cancel
	l.mu.Unlock()

	info, err := l.extractor.Extract(ctx, mediaURL)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seq != seq {
		return SongInfo{}, ErrStale
	}
	l.cancel = nil
	return info, err
}

// Discard cancels the lookup in flight; its result will be reported as stale
func (l *Lookup) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seq++
}
