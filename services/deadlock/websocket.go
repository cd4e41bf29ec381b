// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deadlock

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleStream handles GET /ws.
//
// Description:
//
//	Upgrades to a websocket and subscribes the client to the coordinator's
//	event hub. The client first receives a snapshot event, then every
//	published event: periodic snapshots from the broadcaster and
//	deadlock_resolved notifications. Events a slow client cannot keep up
//	with are dropped for that client only. Messages from the client are
//	read and discarded; a read error ends the stream.
func (h *Handlers) HandleStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStream")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	obs := events.NewChannelObserver(h.streamBuffer)
	id := h.coord.Subscribe(obs)
	h.metrics.StreamStarted()
	logger = logger.With("subscription_id", id)
	logger.Info("Stream client connected")

	defer func() {
		h.coord.Unsubscribe(id)
		obs.Close()
		h.metrics.StreamEnded()
		logger.Info("Stream client disconnected", "dropped", obs.Dropped())
	}()

	ctx := c.Request.Context()
	if err := sendJSON(ws, events.Snapshot(h.coord.Snapshot(ctx))); err != nil {
		return
	}

	// Reader: keeps pong handling alive and reports disconnect.
	closed := make(chan struct{})
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-obs.Events():
			if !ok {
				return
			}
			if err := sendJSON(ws, ev); err != nil {
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
