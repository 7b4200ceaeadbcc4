package crawler

// ProcessedSet holds the URLs discovered in the current run. It only grows.
// It is owned by the single-threaded controller and is not safe for concurrent use.
type ProcessedSet struct {
	seen map[string]struct{}
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{seen: make(map[string]struct{})}
}

// Contains reports whether url was already discovered.
func (p *ProcessedSet) Contains(url string) bool {
	_, ok := p.seen[url]
	return ok
}

// AddAll marks every url as processed.
func (p *ProcessedSet) AddAll(urls []string) {
	for _, u := range urls {
		p.seen[u] = struct{}{}
	}
}

// Len returns the number of distinct URLs seen.
func (p *ProcessedSet) Len() int {
	return len(p.seen)
}

// NewLinks returns visible minus the set, in listing order and without duplicates.
func (p *ProcessedSet) NewLinks(visible []string) []string {
	out := make([]string, 0, len(visible))
	batch := make(map[string]struct{}, len(visible))
	for _, u := range visible {
		if u == "" || p.Contains(u) {
			continue
		}
		if _, dup := batch[u]; dup {
			continue
		}
		batch[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
