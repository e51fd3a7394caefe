package api

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fourkites/rca-engine/pkg/stream"
)

// wsWriteTimeout bounds how long a single frame write may block, mirroring
// the teacher's ConnectionManager.writeTimeout.
const wsWriteTimeout = 5 * time.Second

// streamHandler handles GET /api/v1/investigations/:id/stream. It upgrades
// the connection to a WebSocket and bridges the investigation's
// stream.Bus subscription to it — one frame per event, with the same
// subscribe/catchup semantics any Bus subscriber gets (§6 EXPANSION
// "mirroring pkg/events/manager.go"). The client's own messages are read
// and discarded; this endpoint is output-only.
func (s *Server) streamHandler(c *gin.Context) {
	id := c.Param("id")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin validation is left to the reverse proxy in front of this
		// service, consistent with the unauthenticated /health endpoint.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()
	subID := uuid.NewString()
	sub, err := s.bus.Subscribe(id, subID)
	if err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "investigation not found")
		return
	}
	defer s.bus.Unsubscribe(id, subID)

	go drainClientMessages(ctx, conn)

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "investigation complete")
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				return
			}
			if e.Kind == stream.KindComplete {
				_ = conn.Close(websocket.StatusNormalClosure, "investigation complete")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e stream.Event) error {
	frame, err := stream.Encode(e)
	if err != nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, frame)
}

// drainClientMessages reads and discards client frames so the read buffer
// doesn't fill and a client-initiated close is detected promptly. This
// endpoint carries no client→server protocol.
func drainClientMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
