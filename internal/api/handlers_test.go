package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/HealthScriptMCP/internal/llm"
	"github.com/Corphon/HealthScriptMCP/internal/prompts"
	"github.com/Corphon/HealthScriptMCP/internal/services"
)

const (
	keywordsReply   = `{"keywords": ["糖尿病", "血糖"]}`
	outlinesReply   = `{"outlines": [{"title": "早餐的选择", "description": "从一碗白粥说起"}, {"title": "体检之后", "description": "血糖偏高怎么办"}]}`
	directionsReply = `{"directions": [{"title": "家庭路线", "description": "全家调整饮食"}]}`
	scriptReply     = "场景一：餐桌\n爸爸：今天喝粥吗？\n女儿：血糖高要少喝白粥。\n场景二：社区医院\n医生：糖尿病要控制碳水。"
	flowchartReply  = `{"flowchart": [{"title": "早餐", "description": "讨论白粥"}, {"title": "就医", "description": "医生解释"}]}`
	termsReply      = `{"terminology": [{"term": "血糖", "description": "血液中的葡萄糖"}]}`
)

// scriptedCompleter 按系统提示词返回固定回复
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	failing map[string]error
}

func newScriptedCompleter() *scriptedCompleter {
	set := prompts.Default()
	return &scriptedCompleter{
		replies: map[string]string{
			set.Get(prompts.KeywordAnalysis):       keywordsReply,
			set.Get(prompts.OutlineGeneration):     outlinesReply,
			set.Get(prompts.StoryDirection):        directionsReply,
			set.Get(prompts.ScriptGeneration):      scriptReply,
			set.Get(prompts.FlowchartAnalysis):     flowchartReply,
			set.Get(prompts.TerminologyExtraction): termsReply,
			prompts.ModifySystemPrompt:             scriptReply + "\n医生：记得多运动。",
		},
		failing: map[string]error{},
	}
}

func (s *scriptedCompleter) fail(name prompts.Name, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prompts.Default().Get(name)
	if err == nil {
		delete(s.failing, key)
		return
	}
	s.failing[key] = err
}

func (s *scriptedCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(messages) == 0 {
		return "", fmt.Errorf("empty request")
	}
	if err, ok := s.failing[messages[0].Content]; ok {
		return "", err
	}
	reply, ok := s.replies[messages[0].Content]
	if !ok {
		return "", fmt.Errorf("unexpected prompt")
	}
	return reply, nil
}

type testEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

type testServer struct {
	router    *gin.Engine
	completer *scriptedCompleter
	ws        *WebSocketManager
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	completer := newScriptedCompleter()
	ws := NewWebSocketManager()
	locks := services.NewLockManager()
	t.Cleanup(func() {
		ws.Stop()
		locks.Stop()
	})

	sessions := services.NewSessionService(nil, locks, time.Hour)
	progress := services.NewProgressService()
	generation := services.NewGenerationService(completer, prompts.Default(), sessions, locks, ws)
	analyzer := services.NewAnalyzerService(completer, prompts.Default(), sessions, locks, progress, ws)
	export := services.NewExportService(nil, "")
	llmService := services.NewLLMService(llm.ClientOptions{})

	handler := NewHandler(sessions, generation, analyzer, export, llmService, progress, ws)
	opts.DebugMode = true
	return &testServer{router: NewRouter(handler, opts), completer: completer, ws: ws}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.NotEmpty(t, view.ID)
	return view.ID
}

func TestGenerationFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	id := srv.createSession(t)
	base := "/api/sessions/" + id

	rec, env := srv.do(t, http.MethodPost, base+"/topic", gin.H{"topic": "糖尿病患者的早餐"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.TransitionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Outlines, 2)
	assert.Equal(t, []string{"糖尿病", "血糖"}, result.Keywords)

	rec, _ = srv.do(t, http.MethodPost, base+"/outline/select", gin.H{"index": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = srv.do(t, http.MethodPost, base+"/direction/select", gin.H{"index": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, scriptReply, result.Script)
	assert.Equal(t, 1, result.VersionNumber)

	rec, env = srv.do(t, http.MethodPost, base+"/script/quick-action", gin.H{"action": "添加实际案例"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.VersionNumber)

	rec, env = srv.do(t, http.MethodGet, base+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &versions))
	assert.Len(t, versions, 2)

	rec, _ = srv.do(t, http.MethodPost, base+"/versions/0/load", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = srv.do(t, http.MethodGet, base+"/export/script", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename*=UTF-8''")
	assert.Equal(t, scriptReply, rec.Body.String())
}

func TestAnalysisAndExportOverHTTP(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	id := srv.createSession(t)
	base := "/api/sessions/" + id

	rec, env := srv.do(t, http.MethodPost, base+"/analysis", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, ErrorNoActiveScript, env.Error.Code)

	rec, env = srv.do(t, http.MethodGet, base+"/export/flowchart", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, ErrorExportDataEmpty, env.Error.Code)

	srv.do(t, http.MethodPost, base+"/topic", gin.H{"topic": "控糖早餐"})
	srv.do(t, http.MethodPost, base+"/outline/select", gin.H{"index": 0})
	srv.do(t, http.MethodPost, base+"/direction/select", gin.H{"index": 0})

	rec, _ = srv.do(t, http.MethodPost, base+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = srv.do(t, http.MethodGet, base+"/export/terminology?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exported struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &exported))
	assert.True(t, strings.HasPrefix(exported.Filename, "专业词汇解析_"))
	assert.Contains(t, exported.Content, "1. 血糖")

	rec, _ = srv.do(t, http.MethodGet, base+"/export/flowchart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "早餐")
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec, env := srv.do(t, http.MethodGet, "/api/sessions/not-a-session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorSessionNotFound, env.Error.Code)
	assert.False(t, env.Success)

	id := srv.createSession(t)
	base := "/api/sessions/" + id

	rec, env = srv.do(t, http.MethodPost, base+"/topic", gin.H{"topic": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorEmptyInput, env.Error.Code)

	rec, env = srv.do(t, http.MethodPost, base+"/outline/select", gin.H{"index": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorInvalidStage, env.Error.Code)

	rec, env = srv.do(t, http.MethodPost, base+"/outline/select", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorBadRequest, env.Error.Code)

	rec, env = srv.do(t, http.MethodPost, base+"/reset", gin.H{"confirm": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorConfirmationRequired, env.Error.Code)

	rec, env = srv.do(t, http.MethodPost, base+"/versions/3/load", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorInvalidStage, env.Error.Code)

	rec, env = srv.do(t, http.MethodGet, base+"/export/versions/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorVersionNotFound, env.Error.Code)

	rec, env = srv.do(t, http.MethodGet, "/api/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorTaskNotFound, env.Error.Code)
}

func TestListAndDeleteSessions(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	first := srv.createSession(t)
	second := srv.createSession(t)

	var listed struct {
		Sessions []string `json:"sessions"`
		Total    int      `json:"total"`
	}
	rec, env := srv.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.ElementsMatch(t, []string{first, second}, listed.Sessions)
	assert.Equal(t, 2, listed.Total)

	rec, _ = srv.do(t, http.MethodDelete, "/api/sessions/"+first, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = srv.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Equal(t, []string{second}, listed.Sessions)

	rec, env = srv.do(t, http.MethodDelete, "/api/sessions/"+first, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorSessionNotFound, env.Error.Code)
}

func TestLLMFailureThenRetry(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	id := srv.createSession(t)
	base := "/api/sessions/" + id

	srv.completer.fail(prompts.OutlineGeneration, &llm.ApiError{Kind: llm.KindExhausted, Attempts: 3, Message: "HTTP错误: 503"})
	rec, env := srv.do(t, http.MethodPost, base+"/topic", gin.H{"topic": "高血压"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ErrorLLMCallFailed, env.Error.Code)

	rec, env = srv.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.NotNil(t, view.PendingAction)
	assert.Equal(t, "高血压", view.PendingAction.Topic)

	srv.completer.fail(prompts.OutlineGeneration, nil)
	rec, _ = srv.do(t, http.MethodPost, base+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, env = srv.do(t, http.MethodGet, base, nil)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Nil(t, view.PendingAction)
	assert.Equal(t, "outline", string(view.State.Stage))
}

func TestKeywordRoutes(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	base := "/api/sessions/" + srv.createSession(t)

	rec, env := srv.do(t, http.MethodPost, base+"/keywords", gin.H{"keyword": "饮食"})
	require.Equal(t, http.StatusOK, rec.Code)
	var keywords []string
	require.NoError(t, json.Unmarshal(env.Data, &keywords))
	assert.Equal(t, []string{"饮食"}, keywords)

	rec, env = srv.do(t, http.MethodPost, base+"/keywords/reference", gin.H{"kind": "style", "value": "幽默"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &keywords))
	assert.Equal(t, []string{"饮食", "幽默"}, keywords)

	rec, _ = srv.do(t, http.MethodDelete, base+"/keywords/%E9%A5%AE%E9%A3%9F", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = srv.do(t, http.MethodDelete, base+"/keywords/%E9%A5%AE%E9%A3%9F", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorNotFound, env.Error.Code)
}

func TestUploadTopicFile(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})
	base := "/api/sessions/" + srv.createSession(t)

	upload := func(name, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, base+"/topic/upload", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("topic.pdf", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrorFileInvalid)

	rec = upload("topic.md", "# 糖尿病早餐")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRequestIDAndRateLimit(t *testing.T) {
	srv := newTestServer(t, RouterOptions{RateLimit: 0.001, RateBurst: 1})

	req := httptest.NewRequest(http.MethodGet, "/api/quick-actions", nil)
	req.Header.Set(requestIDHeader, "4f9a3a0e-4d6b-4a63-9d38-2f3f5f0b8d11")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4f9a3a0e-4d6b-4a63-9d38-2f3f5f0b8d11", rec.Header().Get(requestIDHeader))

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "4f9a3a0e-4d6b-4a63-9d38-2f3f5f0b8d11", env.RequestID)

	rec, env = srv.do(t, http.MethodGet, "/api/quick-actions", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, ErrorRateLimited, env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader), "未提供时应生成请求ID")

	// 健康检查不受限流影响
	rec, _ = srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketManagerPublishesToSession(t *testing.T) {
	manager := NewWebSocketManager()
	defer manager.Stop()

	subscriber := newWebSocketClient(nil, "session-a")
	other := newWebSocketClient(nil, "session-b")
	manager.Register(subscriber)
	manager.Register(other)

	manager.BroadcastToSession("session-a", gin.H{"type": "stage_changed"})

	select {
	case data := <-subscriber.send:
		assert.Contains(t, string(data), "stage_changed")
	case <-time.After(time.Second):
		t.Fatal("订阅者应收到消息")
	}
	select {
	case <-other.send:
		t.Fatal("其他会话不应收到消息")
	default:
	}

	status := manager.GetStatus()
	assert.Equal(t, 2, status["total_connections"])

	manager.Unregister(subscriber)
	assert.True(t, subscriber.IsClosed())
	assert.Equal(t, 1, manager.GetStatus()["total_connections"])
}
