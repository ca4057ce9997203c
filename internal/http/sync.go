package http

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rezkysantika/Expression-Measurement/internal/affect"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// syncMessage is what the player sends: either a playback position or a
// request to seek to a segment.
type syncMessage struct {
	Time *float64 `json:"time,omitempty"`
	Seek *int     `json:"seek,omitempty"`
}

type syncReply struct {
	Index *int     `json:"index,omitempty"`
	Time  *float64 `json:"time,omitempty"`
	Error string   `json:"error,omitempty"`
}

// handleSync keeps a playing client aligned with the transcript: the client
// streams playback time updates and gets back the active segment index, but
// only when it changes. A seek request answers with the position to jump to,
// nudged past the segment boundary.
func (a *API) handleSync(c *gin.Context) {
	jobID := c.Param("id")

	payload, err := a.loadPayload(c, jobID)
	if err != nil {
		respondVendorError(c, err)
		return
	}
	segments := affect.BuildSegments(affect.Extract(payload))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	tracker := affect.NewTracker(segments)

	for {
		var msg syncMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("job %s: sync connection dropped: %v", jobID, err)
			}
			return
		}

		switch {
		case msg.Seek != nil:
			i := *msg.Seek
			if i < 0 || i >= len(segments) {
				if err := conn.WriteJSON(syncReply{Error: "segment index out of range"}); err != nil {
					return
				}
				continue
			}
			t := affect.SeekTime(segments[i])
			if err := conn.WriteJSON(syncReply{Time: &t}); err != nil {
				return
			}

		case msg.Time != nil:
			index, changed := tracker.Update(*msg.Time)
			if !changed {
				continue
			}
			if err := conn.WriteJSON(syncReply{Index: &index}); err != nil {
				return
			}
		}
	}
}
