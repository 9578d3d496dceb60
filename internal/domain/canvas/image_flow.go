// Package canvas holds the per-session state of the two UI flows. Each flow
// is an explicit, mutex-guarded object owned by one session; completions are
// sequenced with tickets so a slow, superseded request can never overwrite a
// newer result.
package canvas

import "sync"

// Ticket identifies one submission of a flow. Only the ticket handed out by
// the latest Begin may complete the flow.
type Ticket uint64

// ImageFlow is the state of the image request flow
type ImageFlow struct {
	mu          sync.Mutex
	generation  uint64
	draft       string
	match       string
	assetID     string
	contentType string
	err         string
	pending     bool
}

// ImageSnapshot is a consistent copy of an ImageFlow for rendering
type ImageSnapshot struct {
	Draft       string
	Match       string
	AssetID     string
	ContentType string
	Error       string
	Pending     bool
}

// HasImage reports whether an image is on display
func (s ImageSnapshot) HasImage() bool {
	return s.AssetID != ""
}

// NewImageFlow creates an empty image flow
func NewImageFlow() *ImageFlow {
	return &ImageFlow{}
}

// Begin starts a submission: the error is cleared and the draft and its
// match explanation replace the previous ones immediately.
func (f *ImageFlow) Begin(draft, match string) Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	f.draft = draft
	f.match = match
	f.err = ""
	f.pending = true
	return Ticket(f.generation)
}

// Succeed installs a newly stored asset. It returns the asset it replaced so
// the caller can release it. ok is false when t is stale; the flow is then
// untouched and the caller owns assetID.
func (f *ImageFlow) Succeed(t Ticket, assetID, contentType string) (previous string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint64(t) != f.generation {
		return "", false
	}

	previous = f.assetID
	f.assetID = assetID
	f.contentType = contentType
	f.err = ""
	f.pending = false
	return previous, true
}

// Fail records a user-visible message and keeps the previous image. It
// returns false when t is stale.
func (f *ImageFlow) Fail(t Ticket, message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint64(t) != f.generation {
		return false
	}

	f.err = message
	f.pending = false
	return true
}

// Current reports whether t is still the latest submission
func (f *ImageFlow) Current(t Ticket) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(t) == f.generation
}

// Snapshot returns a copy of the flow
func (f *ImageFlow) Snapshot() ImageSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return ImageSnapshot{
		Draft:       f.draft,
		Match:       f.match,
		AssetID:     f.assetID,
		ContentType: f.contentType,
		Error:       f.err,
		Pending:     f.pending,
	}
}

// Owns reports whether assetID is the image on display
func (f *ImageFlow) Owns(assetID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return assetID != "" && f.assetID == assetID
}

// Close invalidates every outstanding ticket and hands back the displayed
// asset for release.
func (f *ImageFlow) Close() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	assetID := f.assetID
	f.assetID = ""
	f.contentType = ""
	f.pending = false
	return assetID
}
