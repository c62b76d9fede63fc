package crawler

import "sync"

// Page is a page address together with its link depth from the seed.
type Page struct {
	// URL is the absolute page address.
	URL string

	// Depth is the number of link hops from the seed.
	Depth int

	// Title is the page title, set once the page was parsed.
	Title string

	// Err is the fetch or parse error, nil for pages that were crawled.
	Err error
}

// Frontier is a FIFO queue of pages waiting to be fetched.
// It is owned by a single traversal and is not safe for concurrent use.
type Frontier struct {
	items []Page
	head  int
}

// Push appends a page to the tail of the queue.
func (f *Frontier) Push(p Page) {
	f.items = append(f.items, p)
}

// Peek returns the head of the queue without removing it.
func (f *Frontier) Peek() (Page, bool) {
	if f.head >= len(f.items) {
		return Page{}, false
	}
	return f.items[f.head], true
}

// Pop removes and returns the head of the queue.
func (f *Frontier) Pop() (Page, bool) {
	p, ok := f.Peek()
	if !ok {
		return Page{}, false
	}
	f.items[f.head] = Page{}
	f.head++
	// Reclaim the consumed prefix once it dominates the slice.
	if f.head > 32 && f.head*2 > len(f.items) {
		f.items = append(f.items[:0], f.items[f.head:]...)
		f.head = 0
	}
	return p, true
}

// Len returns the number of queued pages.
func (f *Frontier) Len() int {
	return len(f.items) - f.head
}

// VisitedSet is the set of page addresses already fetched or enqueued.
// It only grows during a crawl.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// MarkIfNotVisited adds u and reports true when u was not yet present.
// Check and insert happen under one lock.
func (v *VisitedSet) MarkIfNotVisited(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[u]; ok {
		return false
	}
	v.seen[u] = struct{}{}
	return true
}

// ImageSet is an insertion-ordered set of image addresses.
type ImageSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewImageSet creates an empty ImageSet.
func NewImageSet() *ImageSet {
	return &ImageSet{seen: make(map[string]struct{})}
}

// Add inserts u and reports whether it was new.
func (s *ImageSet) Add(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.order = append(s.order, u)
	return true
}

// List returns the addresses in discovery order.
func (s *ImageSet) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
