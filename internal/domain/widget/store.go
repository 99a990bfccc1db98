package widget

import (
	"sync"
	"time"
)

// PersistedCache is the durable record rehydrated at bootstrap: the last
// normalized result plus the store/environment context it was produced
// under. It survives page reloads within the same storage scope.
type PersistedCache struct {
	StoreID    string                `json:"storeId"`
	KeyType    string                `json:"keyType,omitempty"`
	LastResult *RecommendationResult `json:"lastResult"`
}

// SessionStore owns the page-lifetime mutable flags that multiple call
// sites read and write: the manually-closed suppression flag, the
// has-results marker, the current session, and the last-rendered result
// used for deduplication. It replaces the ad hoc globals of earlier
// iterations with one injected object and a narrow accessor API.
type SessionStore struct {
	mu sync.Mutex

	current        *Session
	manuallyClosed bool
	hasResults     bool
	lastResult     *RecommendationResult

	lastRenderedRequestID string
	lastRenderedAt        time.Time
}

// NewSessionStore creates an empty session store, constructed once per page
// load and passed by reference to the components that need it.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Current returns the active session, or nil when none exists.
func (s *SessionStore) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrent replaces the active session.
func (s *SessionStore) SetCurrent(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}

// ClearCurrent drops the active session.
func (s *SessionStore) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// MarkClosed records a user-initiated close; late asynchronous events must
// not re-open the widget while this is set.
func (s *SessionStore) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manuallyClosed = true
}

// ClearClosed lifts the suppression on an explicit user-initiated open.
func (s *SessionStore) ClearClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manuallyClosed = false
}

// ManuallyClosed reports whether the user closed the widget and no explicit
// open has happened since.
func (s *SessionStore) ManuallyClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manuallyClosed
}

// SetHasResults toggles the in-memory marker mirroring the durable cache.
func (s *SessionStore) SetHasResults(has bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasResults = has
}

// RememberResult sets the marker and keeps the normalized result in memory,
// so a reopen can render it even when no durable cache is configured.
func (s *SessionStore) RememberResult(result *RecommendationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasResults = true
	s.lastResult = result
}

// LastResult returns the in-memory copy of the most recent result, or nil.
func (s *SessionStore) LastResult() *RecommendationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// HasResults reports whether a result is known to exist without consulting
// durable storage.
func (s *SessionStore) HasResults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasResults
}

// ShouldRender applies the deduplication rule: a result with the same
// request id as the last render, arriving within the window, is suppressed.
// Results without a request id always render. A true return records the
// render.
func (s *SessionStore) ShouldRender(requestID string, now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID != "" && requestID == s.lastRenderedRequestID && now.Sub(s.lastRenderedAt) < window {
		return false
	}
	s.lastRenderedRequestID = requestID
	s.lastRenderedAt = now
	return true
}

// Reset clears everything except the manually-closed flag; used on retake
// before starting a fresh session.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.hasResults = false
	s.lastResult = nil
	s.lastRenderedRequestID = ""
	s.lastRenderedAt = time.Time{}
}
