package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	"github.com/mobistudy/indicators-backend-go/internal/analysis/activity"
	"github.com/mobistudy/indicators-backend-go/internal/analysis/analysistest"
	"github.com/mobistudy/indicators-backend-go/internal/config"
	"github.com/mobistudy/indicators-backend-go/internal/daybucket"
	"github.com/mobistudy/indicators-backend-go/internal/handler"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/runguard"
	"github.com/mobistudy/indicators-backend-go/internal/service"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	env    *analysistest.Env
	guard  *runguard.Guard
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	env := analysistest.New(t)
	guard := runguard.New(zerolog.Nop())
	producer := activity.New(analysis.Dependencies{
		Results:    env.Results,
		Indicators: env.Indicators,
		Bucketer:   daybucket.New(""),
		Logger:     zerolog.Nop(),
	})
	engine := analysis.NewEngine(guard, zerolog.Nop(), []analysis.Producer{producer},
		analysis.WithRunRecorder(env.Runs))

	cfg := config.Default()
	router := SetupRouter(cfg, Handlers{
		Runs:       handler.NewRunHandler(service.NewRunService(engine, env.Runs)),
		Indicators: handler.NewIndicatorHandler(service.NewIndicatorService(env.Indicators)),
	}, zerolog.Nop())

	return &testServer{env: env, guard: guard, router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(analysistest.MustJSON(t, body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (s *testServer) addActivity(t *testing.T, key string) {
	date := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	s.env.AddResult(t, &models.TaskResult{
		Key:            key,
		StudyKey:       "study-1",
		UserKey:        "user-1",
		TaskID:         1,
		TaskType:       models.TaskTypeActivity,
		DeviceTimeZone: "Europe/Stockholm",
		Summary: analysistest.MustJSON(t, models.ActivitySummary{Days: []models.ActivityDay{
			{Date: date, Steps: analysistest.Float(1200)},
		}}),
	})
}

var runBody = handler.TriggerRunRequest{StudyKey: "study-1", UserKey: "user-1", TaskIDs: []int{1}}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/v1/producers", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api_requests_total")
}

func TestTriggerRun_ThenReadIndicators(t *testing.T) {
	s := newTestServer(t)
	s.addActivity(t, "r1")

	code, resp := s.do(t, http.MethodPost, "/api/v1/producers/"+activity.ProducerName+"/runs", runBody)
	require.Equal(t, http.StatusOK, code, resp.Message)

	var report analysis.RunReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, models.RunStatusCompleted, report.Status)
	assert.Equal(t, 1, report.Tally.Processed)
	assert.Equal(t, 1, report.Tally.Created)
	assert.NotZero(t, report.RunID)

	code, resp = s.do(t, http.MethodGet, "/api/v1/indicators?studyKey=study-1&userKey=user-1&taskIds=1&day=2024-03-10", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	var page struct {
		Indicators []models.Indicator `json:"indicators"`
		Count      int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Equal(t, 1, page.Count)
	assert.Equal(t, 1200.0, page.Indicators[0].Metrics[models.MetricSteps])
	assert.Equal(t, []string{"r1"}, page.Indicators[0].SourceResultKeys)

	code, resp = s.do(t, http.MethodGet, "/api/v1/runs/"+itoa(report.RunID), nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	var run models.RunRecord
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Created)
}

func TestTriggerRun_InputErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"unknown producer", "/api/v1/producers/nope/runs", runBody},
		{"missing study", "/api/v1/producers/" + activity.ProducerName + "/runs",
			handler.TriggerRunRequest{UserKey: "user-1", TaskIDs: []int{1}}},
		{"empty task ids", "/api/v1/producers/" + activity.ProducerName + "/runs",
			handler.TriggerRunRequest{StudyKey: "study-1", UserKey: "user-1"}},
		{"malformed body", "/api/v1/producers/" + activity.ProducerName + "/runs", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestTriggerRun_ConflictWhileScopeInFlight(t *testing.T) {
	s := newTestServer(t)
	s.addActivity(t, "r1")

	key := runguard.ScopeKey(activity.ProducerName, "study-1", "user-1", []int{1})
	require.True(t, s.guard.TryEnter(key))

	code, resp := s.do(t, http.MethodPost, "/api/v1/producers/"+activity.ProducerName+"/runs", runBody)
	assert.Equal(t, http.StatusConflict, code)

	var report analysis.RunReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, models.RunStatusRejected, report.Status)
	assert.Empty(t, s.env.IndicatorsFor(t, "study-1", "user-1", activity.ProducerName))

	s.guard.Exit(key)
	code, _ = s.do(t, http.MethodPost, "/api/v1/producers/"+activity.ProducerName+"/runs", runBody)
	assert.Equal(t, http.StatusOK, code)
}

func TestListRunsAndProducers(t *testing.T) {
	s := newTestServer(t)
	s.addActivity(t, "r1")
	s.do(t, http.MethodPost, "/api/v1/producers/"+activity.ProducerName+"/runs", runBody)

	code, resp := s.do(t, http.MethodGet, "/api/v1/runs?producer="+activity.ProducerName, nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Runs  []models.RunRecord `json:"runs"`
		Limit int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Runs, 1)
	assert.Equal(t, 20, page.Limit)

	code, resp = s.do(t, http.MethodGet, "/api/v1/producers", nil)
	require.Equal(t, http.StatusOK, code)
	var producers []analysis.ProducerInfo
	require.NoError(t, json.Unmarshal(resp.Data, &producers))
	assert.Equal(t, []analysis.ProducerInfo{{Name: activity.ProducerName, TaskType: models.TaskTypeActivity}}, producers)
}

func TestListRuns_ReportsAppliedPaging(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 20, 0},
		{"explicit", "?limit=5&offset=3", 5, 3},
		{"limit clamped", "?limit=5000", 200, 0},
		{"negative offset clamped", "?offset=-4", 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodGet, "/api/v1/runs"+tt.query, nil)
			require.Equal(t, http.StatusOK, code, resp.Message)

			var page struct {
				Limit  int `json:"limit"`
				Offset int `json:"offset"`
			}
			require.NoError(t, json.Unmarshal(resp.Data, &page))
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantOffset, page.Offset)
		})
	}
}

func TestReadErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"run id not a number", "/api/v1/runs/abc", http.StatusBadRequest},
		{"run missing", "/api/v1/runs/999", http.StatusNotFound},
		{"indicators without study", "/api/v1/indicators?userKey=user-1", http.StatusBadRequest},
		{"indicators bad day", "/api/v1/indicators?studyKey=study-1&day=10-03-2024", http.StatusBadRequest},
		{"indicators bad task ids", "/api/v1/indicators?studyKey=study-1&taskIds=1,x", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, code)
		})
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
