package services

import (
	"net/url"
	"sync"

	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/tracking"
)

// ReturnService reports visitors landing back on the store with a
// recommendation carried in the URL. The beacon fires at most once per page
// load.
type ReturnService struct {
	storeID string
	beacon  *tracking.Beacon
	logger  *logging.ChanneledLogger

	mu       sync.Mutex
	reported bool
}

func NewReturnService(storeID string, beacon *tracking.Beacon, logger *logging.ChanneledLogger) *ReturnService {
	return &ReturnService{storeID: storeID, beacon: beacon, logger: logger}
}

// HandleLanding inspects the page URL for a completed-flow return. The URL
// must carry rec_size plus a correlating rec_id or session_id.
func (rs *ReturnService) HandleLanding(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	recSize := q.Get("rec_size")
	if recSize == "" {
		return false
	}
	correlation := q.Get("rec_id")
	if correlation == "" {
		correlation = q.Get("session_id")
	}
	if correlation == "" {
		return false
	}

	rs.mu.Lock()
	if rs.reported {
		rs.mu.Unlock()
		return false
	}
	rs.reported = true
	rs.mu.Unlock()

	rs.logger.Track().Info("Flow return detected",
		"recSize", recSize, "correlation", correlation)
	if rs.beacon != nil {
		rs.beacon.TrackReturn(tracking.ReturnPayload{
			SessionID:       correlation,
			RecommendedSize: recSize,
			PageURL:         u.String(),
			StoreID:         rs.storeID,
		})
	}
	return true
}

// Reset clears the once-per-page guard on navigation.
func (rs *ReturnService) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.reported = false
}
