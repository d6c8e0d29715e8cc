// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"serial-bridge/internal/model"
	"serial-bridge/internal/service"
	"serial-bridge/internal/session"
	"serial-bridge/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// WebSocketHandler streams session events to browser clients and accepts
// commands from them
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	connections    *ConnectionManager
	sessionService *service.SessionService
	eventBus       *EventBus
	subscription   session.SubscriptionID
	logger         *utils.ServiceLogger
}

// NewWebSocketHandler creates a WebSocket handler subscribed to the session.
// Close releases the subscription.
func NewWebSocketHandler(sessionService *service.SessionService, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		connections:    NewConnectionManager(),
		sessionService: sessionService,
		eventBus:       NewEventBus(1024, logger),
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
	}

	events := h.eventBus.Subscribe(sendQueueSize)
	go h.eventBus.Start()
	go h.broadcastEvents(events)
	h.subscription = sessionService.Subscribe(h.eventBus.Publish)

	return h
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/ws/session", h.HandleSessionConnection)
}

// HandleSessionConnection upgrades the request and starts streaming
func (h *WebSocketHandler) HandleSessionConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, sendQueueSize),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Session WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type: MessageSnapshot,
		Data: gin.H{
			"status":  h.sessionService.Status(),
			"records": h.sessionService.Records(),
		},
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// Close unsubscribes from the session and disconnects every client
func (h *WebSocketHandler) Close() {
	h.sessionService.Unsubscribe(h.subscription)
	h.eventBus.Stop()
	h.connections.CloseAll()
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	return h.connections.Count()
}

func (h *WebSocketHandler) broadcastEvents(events <-chan model.SessionEvent) {
	for evt := range events {
		payload, err := json.Marshal(&WebSocketMessage{
			Type:      MessageSessionEvent,
			Data:      evt,
			Timestamp: evt.Timestamp,
		})
		if err != nil {
			h.logger.Error("Failed to marshal session event", zap.Error(err))
			continue
		}

		for _, client := range h.connections.Clients() {
			if !h.connections.Enqueue(client, payload) {
				h.logger.Warn("Client too slow, dropping event",
					zap.String("client_id", client.ID),
					zap.String("event_type", string(evt.Type)),
				)
			}
		}
	}
}

func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("Session WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadLimit(maxMessageSize)
	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		return client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message ClientMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			h.sendError(client, "", "invalid message", fmt.Errorf("%w: %w", service.ErrInvalidRequest, err))
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleClientMessage(client *Client, message *ClientMessage) {
	switch message.Type {
	case "send":
		var req service.SendRequest
		if err := json.Unmarshal(message.Data, &req); err != nil {
			h.sendError(client, message.RequestID, "invalid send payload", fmt.Errorf("%w: %w", service.ErrInvalidRequest, err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := h.sessionService.Send(ctx, &req); err != nil {
			h.sendError(client, message.RequestID, "send failed", err)
			return
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessageSent,
			Data:      gin.H{"text": req.Text},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	case "cancel_upload":
		job, err := h.sessionService.CancelUpload()
		if err != nil {
			h.sendError(client, message.RequestID, "cancel failed", err)
			return
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessageCancelled,
			Data:      job,
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessagePong,
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, "unknown message type",
			fmt.Errorf("%w: unknown message type %q", service.ErrInvalidRequest, message.Type))
	}
}

func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}
	if !h.connections.Enqueue(client, payload) {
		h.logger.Warn("Client send queue full", zap.String("client_id", client.ID))
	}
}

func (h *WebSocketHandler) sendError(client *Client, requestID, message string, err error) {
	_, code := classifyError(err)
	data := utils.APIError{Code: code, Message: message}
	if err != nil {
		data.Details = err.Error()
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageError,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// checkOrigin accepts any origin when none are configured
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
