package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/core"
	"github.com/axiomchronicles/drevoid-server/internal/ctf"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

// ObserverHandlers expose read-only server state: stats, rooms, flag
// captures, and the leaderboard. They never mutate core state.
type ObserverHandlers struct {
	dispatcher *core.Dispatcher
	detector   *ctf.Detector
	log        *zerolog.Logger
}

// NewObserverHandlers creates the observer handler set.
func NewObserverHandlers(dispatcher *core.Dispatcher, detector *ctf.Detector, logger *zerolog.Logger) *ObserverHandlers {
	return &ObserverHandlers{
		dispatcher: dispatcher,
		detector:   detector,
		log:        logger,
	}
}

// Stats returns connected-user, active-room, and uptime counters.
// GET /api/stats
func (h *ObserverHandlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Stats())
}

// Rooms returns summaries of all rooms.
// GET /api/rooms
func (h *ObserverHandlers) Rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.dispatcher.RoomSummaries()})
}

// Flags returns every recorded capture in capture order.
// GET /api/flags
func (h *ObserverHandlers) Flags(c *gin.Context) {
	captures := h.detector.Captures()
	flags := make([]proto.FlagCapture, 0, len(captures))
	for _, capture := range captures {
		flags = append(flags, proto.FlagCapture{
			Flag:       capture.Value,
			Finder:     capture.Finder,
			Room:       capture.Room,
			CapturedAt: capture.CapturedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags, "total": len(flags)})
}

// Leaderboard returns finders ranked by captures.
// GET /api/leaderboard
func (h *ObserverHandlers) Leaderboard(c *gin.Context) {
	standings := h.detector.Leaderboard()
	board := make([]proto.LeaderboardEntry, 0, len(standings))
	for _, s := range standings {
		board = append(board, proto.LeaderboardEntry{
			Username:     s.Username,
			Captures:     s.Captures,
			FirstCapture: s.FirstCapture.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": board})
}
