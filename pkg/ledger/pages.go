package ledger

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// PageSnapshot is the on-disk form of the page log.
type PageSnapshot struct {
	Version    int              `json:"version"`
	TotalPages int              `json:"total_pages"`
	Pages      map[int][]string `json:"pages"`
}

// PageLog remembers which listing pages were walked and the identifiers each
// one listed, so a resumed enumeration can reuse them instead of requesting
// the page again. Failed pages are never recorded. It is safe for concurrent
// use.
type PageLog struct {
	mu     sync.RWMutex
	fs     afero.Fs
	path   string
	logger *logrus.Logger
	opts   options
	total  int
	pages  map[int][]string
	dirty  int
}

// NewPageLog creates an empty page log backed by path. Call Load to restore
// a previous snapshot.
func NewPageLog(fs afero.Fs, path string, logger *logrus.Logger, opts ...Option) *PageLog {
	if logger == nil {
		logger = logrus.New()
	}
	return &PageLog{
		fs:     fs,
		path:   path,
		logger: logger,
		opts:   applyOptions(opts),
		pages:  make(map[int][]string),
	}
}

// Path returns the snapshot file location.
func (p *PageLog) Path() string {
	return p.path
}

// Load replaces the in-memory state with the snapshot on disk. A missing or
// corrupt file yields an empty log.
func (p *PageLog) Load() error {
	var snap PageSnapshot
	found, err := readJSON(p.fs, p.path, &snap)
	if err != nil {
		if !found {
			return err
		}
		p.logger.WithFields(logrus.Fields{
			"path":  p.path,
			"error": err,
		}).Warn("Page log is corrupt, listing pages again")
		snap = PageSnapshot{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = snap.TotalPages
	p.pages = make(map[int][]string, len(snap.Pages))
	for page, ids := range snap.Pages {
		p.pages[page] = append([]string{}, ids...)
	}
	p.dirty = 0

	p.logger.WithFields(logrus.Fields{
		"path":  p.path,
		"pages": len(p.pages),
	}).Debug("Loaded page log")
	return nil
}

// TotalPages returns the listing size seen on the last walk, 0 if unknown.
func (p *PageLog) TotalPages() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// SetTotalPages records the listing size.
func (p *PageLog) SetTotalPages(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == n {
		return nil
	}
	p.total = n
	return p.touchLocked()
}

// Listed returns the identifiers recorded for page.
func (p *PageLog) Listed(page int) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids, ok := p.pages[page]
	if !ok {
		return nil, false
	}
	return append([]string{}, ids...), true
}

// Record stores the identifiers a page listed.
func (p *PageLog) Record(page int, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[page] = append([]string{}, ids...)
	return p.touchLocked()
}

// Len returns the number of recorded pages.
func (p *PageLog) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pages)
}

// Flush persists pending changes.
func (p *PageLog) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty == 0 {
		return nil
	}
	return p.writeLocked()
}

// Reset forgets every page and removes the file.
func (p *PageLog) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = 0
	p.pages = make(map[int][]string)
	p.dirty = 0
	return removeIfExists(p.fs, p.path)
}

func (p *PageLog) touchLocked() error {
	p.dirty++
	if p.dirty >= p.opts.flushEvery {
		return p.writeLocked()
	}
	return nil
}

func (p *PageLog) writeLocked() error {
	snap := PageSnapshot{
		Version:    snapshotVersion,
		TotalPages: p.total,
		Pages:      p.pages,
	}
	if err := writeJSONAtomic(p.fs, p.path, snap); err != nil {
		return err
	}
	p.dirty = 0
	return nil
}
