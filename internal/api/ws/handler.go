package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ptyexec/internal/shared/validate"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced by the CORS middleware
	},
}

// Handler manages WebSocket connections
type Handler struct {
	executor *executor.Executor
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler. metrics and logger may be nil.
func NewHandler(exec *executor.Executor, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		executor: exec,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
	}
}

// connection serializes writes to one socket and tracks its commands
type connection struct {
	id      string
	socket  *websocket.Conn
	metrics *monitoring.Metrics
	logger  *zap.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	socket.SetReadLimit(validate.MaxMessageSize)

	connID := uuid.NewString()
	conn := &connection{
		id:      connID,
		socket:  socket,
		metrics: h.metrics,
		logger:  h.logger.With(zap.String("connection_id", connID)),
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	// Cancelling ctx cancels every command started on this connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.wg.Wait()
		socket.Close()
		conn.logger.Debug("WebSocket closed")
	}()

	welcome := newFrame(TypeSystem, "")
	welcome.ConnectionID = conn.id
	welcome.Message = "Connected to ptyexec"
	if err := conn.send(welcome); err != nil {
		return
	}

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			conn.sendError("", "malformed message")
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		h.dispatch(ctx, conn, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *connection, msg Message) {
	switch msg.Type {
	case TypeExecute:
		h.handleExecute(ctx, conn, msg)
	case TypeInput:
		if msg.CommandID == "" || msg.Data == "" {
			conn.sendError(msg.RequestID, "input requires command_id and data")
			return
		}
		if err := validate.Input(msg.Data); err != nil {
			conn.sendError(msg.RequestID, err.Error())
			return
		}
		h.ack(conn, msg, h.executor.SendInput(msg.CommandID, []byte(msg.Data)), "input delivered", "command is not running")
	case TypeResize:
		if msg.CommandID == "" || msg.Cols < 1 || msg.Rows < 1 {
			conn.sendError(msg.RequestID, "resize requires command_id, cols and rows")
			return
		}
		h.ack(conn, msg, h.executor.ResizeTerminal(msg.CommandID, msg.Cols, msg.Rows), "terminal resized", "command not found")
	case TypeCancel:
		h.ack(conn, msg, h.executor.Cancel(msg.CommandID), "command cancelled", "command not found or already finished")
	case TypePing:
		_ = conn.send(newFrame(TypePong, msg.RequestID))
	default:
		conn.sendError(msg.RequestID, "unknown message type")
	}
}

func (h *Handler) handleExecute(ctx context.Context, conn *connection, msg Message) {
	if msg.Command == "" {
		conn.sendError(msg.RequestID, executor.ErrEmptyCommand.Error())
		return
	}
	if err := validate.Request(msg.Command, msg.SessionID, msg.ProjectPath, msg.Env); err != nil {
		conn.sendError(msg.RequestID, err.Error())
		return
	}

	responses := h.executor.Execute(ctx, executor.Request{
		Command:     msg.Command,
		SessionID:   msg.SessionID,
		Timeout:     time.Duration(msg.TimeoutMs) * time.Millisecond,
		ProjectPath: msg.ProjectPath,
		Env:         msg.Env,
	})

	conn.wg.Add(1)
	go func() {
		defer conn.wg.Done()
		for resp := range responses {
			frame := newFrame(TypeResponse, msg.RequestID)
			frame.Response = &resp
			// A failed write is not fatal; the read loop notices the dead
			// socket and cancels the command.
			_ = conn.send(frame)
		}
	}()
}

func (h *Handler) ack(conn *connection, msg Message, ok bool, success, failure string) {
	if !ok {
		conn.sendError(msg.RequestID, failure)
		return
	}
	frame := newFrame(TypeSystem, msg.RequestID)
	frame.Message = success
	_ = conn.send(frame)
}

func (c *connection) send(frame Frame) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.RecordWSMessage("out", frame.Type)
	return nil
}

func (c *connection) sendError(requestID, message string) {
	frame := newFrame(TypeError, requestID)
	frame.Message = message
	_ = c.send(frame)
}
