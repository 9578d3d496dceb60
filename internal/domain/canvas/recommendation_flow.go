package canvas

import "sync"

// Item is one recommendation as displayed. ID is opaque text.
type Item struct {
	ID         string
	Name       string
	Similarity *float64
}

// RecommendationFlow is the state of the recommendation flow
type RecommendationFlow struct {
	mu          sync.Mutex
	generation  uint64
	preferences []string
	items       []Item
	fetched     bool
	err         string
	pending     bool
}

// RecommendationSnapshot is a consistent copy of a RecommendationFlow
type RecommendationSnapshot struct {
	Preferences []string
	Items       []Item
	Fetched     bool
	Error       string
	Pending     bool
}

// NewRecommendationFlow creates an empty recommendation flow
func NewRecommendationFlow() *RecommendationFlow {
	return &RecommendationFlow{preferences: []string{}}
}

// SetPreferences replaces the preference list wholesale
func (f *RecommendationFlow) SetPreferences(prefs []string) {
	cp := make([]string, len(prefs))
	copy(cp, prefs)

	f.mu.Lock()
	f.preferences = cp
	f.mu.Unlock()
}

// Preferences returns a copy of the current preference list
func (f *RecommendationFlow) Preferences() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make([]string, len(f.preferences))
	copy(cp, f.preferences)
	return cp
}

// Begin starts a submission and clears the previous error
func (f *RecommendationFlow) Begin() Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	f.err = ""
	f.pending = true
	return Ticket(f.generation)
}

// Succeed replaces the displayed list wholesale. It returns false when t is
// stale, leaving the flow untouched.
func (f *RecommendationFlow) Succeed(t Ticket, items []Item) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint64(t) != f.generation {
		return false
	}

	f.items = make([]Item, len(items))
	copy(f.items, items)
	f.fetched = true
	f.err = ""
	f.pending = false
	return true
}

// Fail records a user-visible message and keeps the previous list. It
// returns false when t is stale.
func (f *RecommendationFlow) Fail(t Ticket, message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint64(t) != f.generation {
		return false
	}

	f.err = message
	f.pending = false
	return true
}

// Snapshot returns a copy of the flow
func (f *RecommendationFlow) Snapshot() RecommendationSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefs := make([]string, len(f.preferences))
	copy(prefs, f.preferences)
	items := make([]Item, len(f.items))
	copy(items, f.items)

	return RecommendationSnapshot{
		Preferences: prefs,
		Items:       items,
		Fetched:     f.fetched,
		Error:       f.err,
		Pending:     f.pending,
	}
}
