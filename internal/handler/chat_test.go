package handler

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
    "go.uber.org/zap/zaptest/observer"

    q "github.com/tim/chat-echo/internal/queue"
)

type sinkStub struct {
    mu     sync.Mutex
    events []q.ChatEvent
    accept bool
}

func (s *sinkStub) Publish(ev q.ChatEvent) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.events = append(s.events, ev)
    return s.accept
}

func newChatEcho(h *ChatHandler) *echo.Echo {
    e := echo.New()
    e.Validator = NewValidator()
    e.JSONSerializer = StrictJSONSerializer{}
    e.POST("/chat", h.Chat)
    return e
}

func postChat(e *echo.Echo, body, contentType string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
    if contentType != "" {
        req.Header.Set(echo.HeaderContentType, contentType)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) []ValidationIssue {
    t.Helper()
    var resp ValidationResponse
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
    require.NotEmpty(t, resp.Detail)
    return resp.Detail
}

func TestReplyFor(t *testing.T) {
    assert.Equal(t, "收到！你刚才说了：hello。但还没接服务。", ReplyFor("hello"))
    assert.Equal(t, "收到！你刚才说了：。但还没接服务。", ReplyFor(""))
}

func TestChat_EchoesMessage(t *testing.T) {
    e := newChatEcho(NewChatHandler(zap.NewNop(), nil))

    for _, m := range []string{"hello", "", "你好，世界", `quotes " and \ backslash`, "line\nbreak", "<b>&</b>"} {
        body, err := json.Marshal(map[string]string{"message": m})
        require.NoError(t, err)

        rec := postChat(e, string(body), echo.MIMEApplicationJSON)
        require.Equal(t, http.StatusOK, rec.Code, "message %q", m)

        var resp ChatResponse
        require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
        assert.Equal(t, "收到！你刚才说了："+m+"。但还没接服务。", resp.Reply)
    }
}

func TestChat_ConcreteExample(t *testing.T) {
    e := newChatEcho(NewChatHandler(nil, nil))
    rec := postChat(e, `{"message": "hello"}`, echo.MIMEApplicationJSON)

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"reply": "收到！你刚才说了：hello。但还没接服务。"}`, rec.Body.String())
}

func TestChat_Idempotent(t *testing.T) {
    e := newChatEcho(NewChatHandler(nil, nil))
    first := postChat(e, `{"message":"again"}`, echo.MIMEApplicationJSON).Body.String()
    second := postChat(e, `{"message":"again"}`, echo.MIMEApplicationJSON).Body.String()
    assert.Equal(t, first, second)
}

func TestChat_IgnoresExtraFields(t *testing.T) {
    e := newChatEcho(NewChatHandler(nil, nil))
    rec := postChat(e, `{"message":"hi","model":"x"}`, echo.MIMEApplicationJSON)
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_LogsMessage(t *testing.T) {
    core, logs := observer.New(zap.InfoLevel)
    e := newChatEcho(NewChatHandler(zap.New(core), nil))

    postChat(e, `{"message":"ping"}`, echo.MIMEApplicationJSON)

    entries := logs.FilterMessage("chat message received").All()
    require.Len(t, entries, 1)
    assert.Equal(t, "ping", entries[0].ContextMap()["message"])
}

func TestChat_PublishesEvent(t *testing.T) {
    sink := &sinkStub{accept: true}
    e := newChatEcho(NewChatHandler(zap.NewNop(), sink))

    rec := postChat(e, `{"message":"ping"}`, echo.MIMEApplicationJSON)
    require.Equal(t, http.StatusOK, rec.Code)

    require.Len(t, sink.events, 1)
    ev := sink.events[0]
    assert.Equal(t, "ping", ev.Message)
    assert.Equal(t, ReplyFor("ping"), ev.Reply)
    assert.NotEmpty(t, ev.ReceivedAt)
}

func TestChat_DroppedEventDoesNotAffectResponse(t *testing.T) {
    sink := &sinkStub{accept: false}
    e := newChatEcho(NewChatHandler(zap.NewNop(), sink))

    rec := postChat(e, `{"message":"ping"}`, echo.MIMEApplicationJSON)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"reply":"收到！你刚才说了：ping。但还没接服务。"}`, rec.Body.String())
}

func TestChat_ValidationErrors(t *testing.T) {
    cases := []struct {
        name, body, contentType string
        wantType               string
        wantLoc                []any
    }{
        {"missing field", `{}`, echo.MIMEApplicationJSON, "missing", []any{"body", "message"}},
        {"other field only", `{"text":"hi"}`, echo.MIMEApplicationJSON, "missing", []any{"body", "message"}},
        {"null", `{"message":null}`, echo.MIMEApplicationJSON, "missing", []any{"body", "message"}},
        {"empty body", ``, echo.MIMEApplicationJSON, "missing", []any{"body", "message"}},
        {"number", `{"message":42}`, echo.MIMEApplicationJSON, "string_type", []any{"body", "message"}},
        {"bool", `{"message":true}`, echo.MIMEApplicationJSON, "string_type", []any{"body", "message"}},
        {"array", `{"message":["a"]}`, echo.MIMEApplicationJSON, "string_type", []any{"body", "message"}},
        {"object", `{"message":{"a":1}}`, echo.MIMEApplicationJSON, "string_type", []any{"body", "message"}},
        {"body is array", `["hello"]`, echo.MIMEApplicationJSON, "model_attributes_type", []any{"body"}},
        {"body is string", `"hello"`, echo.MIMEApplicationJSON, "model_attributes_type", []any{"body"}},
        {"syntax error", `{"message": hello}`, echo.MIMEApplicationJSON, "json_invalid", nil},
        {"truncated", `{"message":`, echo.MIMEApplicationJSON, "json_invalid", []any{"body"}},
        {"not json", `message=hello`, echo.MIMETextPlain, "model_attributes_type", []any{"body"}},
        {"trailing text", `{"message":"hi"} trailing`, echo.MIMEApplicationJSON, "json_invalid", []any{"body"}},
        {"second value", `{"message":"hi"}{"message":"again"}`, echo.MIMEApplicationJSON, "json_invalid", []any{"body"}},
        {"stray brace", `{"message":"hi"}}`, echo.MIMEApplicationJSON, "json_invalid", []any{"body"}},
        {"no content type, missing field", `{}`, "", "missing", []any{"body", "message"}},
    }

    e := newChatEcho(NewChatHandler(zap.NewNop(), nil))
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rec := postChat(e, tc.body, tc.contentType)
            require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

            detail := decodeDetail(t, rec)
            assert.Equal(t, tc.wantType, detail[0].Type)
            if tc.wantLoc != nil {
                assert.Equal(t, tc.wantLoc, detail[0].Loc)
            } else {
                assert.Len(t, detail[0].Loc, 2, "body plus byte offset")
            }
            assert.NotEmpty(t, detail[0].Msg)
        })
    }
}

func TestChat_ContentTypes(t *testing.T) {
    cases := []struct {
        name, body, contentType string
        want                    int
    }{
        {"json", `{"message":"hi"}`, echo.MIMEApplicationJSON, http.StatusOK},
        {"json with charset", `{"message":"hi"}`, echo.MIMEApplicationJSONCharsetUTF8, http.StatusOK},
        {"no header", `{"message":"hi"}`, "", http.StatusOK},
        {"structured suffix", `{"message":"hi"}`, "application/vnd.api+json", http.StatusOK},
        {"merge patch json", `{"message":"hi"}`, "application/merge-patch+json; charset=utf-8", http.StatusOK},
        {"trailing whitespace", "{\"message\":\"hi\"}  \n", echo.MIMEApplicationJSON, http.StatusOK},
        {"text plain", `{"message":"hi"}`, echo.MIMETextPlain, http.StatusUnprocessableEntity},
        {"text with json suffix", `{"message":"hi"}`, "text/x+json", http.StatusUnprocessableEntity},
    }

    e := newChatEcho(NewChatHandler(zap.NewNop(), nil))
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rec := postChat(e, tc.body, tc.contentType)
            require.Equal(t, tc.want, rec.Code, rec.Body.String())
            if tc.want == http.StatusOK {
                assert.JSONEq(t, `{"reply":"收到！你刚才说了：hi。但还没接服务。"}`, rec.Body.String())
            }
        })
    }
}

func TestChat_InvalidBodyIsNotPublished(t *testing.T) {
    sink := &sinkStub{accept: true}
    e := newChatEcho(NewChatHandler(zap.NewNop(), sink))

    postChat(e, `{"message":1}`, echo.MIMEApplicationJSON)
    assert.Empty(t, sink.events)
}
