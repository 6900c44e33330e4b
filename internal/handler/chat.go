package handler

import (
    "mime"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    q "github.com/tim/chat-echo/internal/queue"
)

// Reply template pieces.  The message is inserted between them verbatim.
const (
    replyPrefix = "收到！你刚才说了："
    replySuffix = "。但还没接服务。"
)

// EventSink receives one event per answered chat message.  Publish must not
// block; it reports whether the event was accepted.
type EventSink interface {
    Publish(event q.ChatEvent) bool
}

// ChatHandler answers POST /chat.
type ChatHandler struct {
    Log    *zap.Logger
    Events EventSink // optional
}

// NewChatHandler builds a ChatHandler.  events may be nil.
func NewChatHandler(log *zap.Logger, events EventSink) *ChatHandler {
    if log == nil {
        log = zap.NewNop()
    }
    return &ChatHandler{Log: log, Events: events}
}

// ----- DTOs -----

// ChatRequest is the body of POST /chat.  Message is a pointer so that an
// absent or null field can be told apart from an empty string.
type ChatRequest struct {
    Message *string `json:"message" validate:"required"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
    Reply string `json:"reply"`
}

// ReplyFor returns the canned reply for message.
func ReplyFor(message string) string {
    return replyPrefix + message + replySuffix
}

// Chat binds and validates the request, logs the message and replies with
// the canned template.  Any bind or validation failure is a 422.  A body
// without a Content-Type, or with an application/*+json one, is read as JSON.
func (h *ChatHandler) Chat(c echo.Context) error {
    normalizeJSONContentType(c.Request())

    var req ChatRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: []ValidationIssue{bindIssue(err)}})
    }
    if err := c.Validate(&req); err != nil {
        return c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: validationIssues(err)})
    }

    msg := *req.Message
    reply := ReplyFor(msg)
    h.Log.Info("chat message received", zap.String("message", msg))

    if h.Events != nil {
        h.Events.Publish(q.ChatEvent{
            Message:    msg,
            Reply:      reply,
            RemoteIP:   c.RealIP(),
            RequestID:  c.Response().Header().Get(echo.HeaderXRequestID),
            ReceivedAt: time.Now().UTC().Format(time.RFC3339),
        })
    }

    return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}

// normalizeJSONContentType rewrites a missing or structured-syntax JSON
// media type (application/vnd.api+json, ...) to application/json so echo's
// binder decodes it.  Other types are left alone and fail binding.
func normalizeJSONContentType(r *http.Request) {
    ct := r.Header.Get(echo.HeaderContentType)
    if ct == "" {
        r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
        return
    }
    mt, _, err := mime.ParseMediaType(ct)
    if err != nil {
        return
    }
    if strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json") {
        r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
}
