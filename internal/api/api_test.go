package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/twinscan/internal/config"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeService struct {
	mu      sync.Mutex
	runs    []plagiarism.ComputeParams
	matrix  *plagiarism.SimilarityMatrix
	reports map[string][]byte
}

func newFakeService() *fakeService {
	m := plagiarism.NewMatrix([]string{"a.py", "b.py", "c.py"})
	m.Set(0, 1, 0.9)
	m.Set(0, 2, 0.05)
	m.Set(1, 2, 0.2)
	return &fakeService{
		matrix:  m,
		reports: map[string][]byte{"a.py|b.py": []byte("<html>a vs b</html>")},
	}
}

func (f *fakeService) Compute(ctx context.Context, p plagiarism.ComputeParams) (*models.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, p)
	return &models.RunReport{RunID: p.RunID, CorpusID: p.CorpusID, Status: models.RunCompleted}, nil
}

func (f *fakeService) Status(ctx context.Context, corpusID string) (models.Step, error) {
	return models.StepCompleted, nil
}

func (f *fakeService) LatestRun(ctx context.Context, corpusID string) (*models.RunReport, error) {
	if corpusID != "c1" {
		return nil, nil
	}
	return &models.RunReport{RunID: "run-7", CorpusID: corpusID, Status: models.RunCompleted, SuspectCount: 1}, nil
}

func (f *fakeService) Matrix(ctx context.Context, corpusID string) (*plagiarism.SimilarityMatrix, error) {
	return f.matrix, nil
}

func (f *fakeService) Suspects(ctx context.Context, corpusID string, thresholdPercent float64) ([]plagiarism.SuspectPair, error) {
	return plagiarism.Classify(f.matrix, thresholdPercent)
}

func (f *fakeService) Ranking(ctx context.Context, corpusID, target string) ([]plagiarism.SimilarityEntry, error) {
	idx, ok := f.matrix.IndexOf(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", plagiarism.ErrTargetNotFound, target)
	}
	return f.matrix.Ranked(idx), nil
}

func (f *fakeService) Report(ctx context.Context, corpusID, a, b string) ([]byte, error) {
	if body, ok := f.reports[a+"|"+b]; ok {
		return body, nil
	}
	return nil, plagiarism.ErrReportNotAvailable
}

func (f *fakeService) computed() []plagiarism.ComputeParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]plagiarism.ComputeParams(nil), f.runs...)
}

type fakeCounter map[string]int64

func (f fakeCounter) CountSourcesByCorpusID(ctx context.Context, corpusID string) (int64, error) {
	return f[corpusID], nil
}

type memoryStatus struct {
	mu    sync.Mutex
	steps map[string]models.Step
}

func (s *memoryStatus) UpdateStatus(ctx context.Context, corpusID string, step models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[corpusID] = step
	return nil
}

func (s *memoryStatus) GetStatus(ctx context.Context, corpusID string) (models.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[corpusID], nil
}

type testServer struct {
	router  *gin.Engine
	handler *Handler
	service *fakeService
	status  *memoryStatus
}

func newTestServer(t *testing.T, rps float64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWTSecret:            testSecret,
		JWTIssuer:            "twinscan",
		RateLimitRPS:         rps,
		MaxConcurrentCompute: 1,
		ComputationTimeout:   time.Minute,
		ThresholdPercent:     10,
	}
	svc := newFakeService()
	status := &memoryStatus{steps: map[string]models.Step{}}
	handler := NewHandler(cfg, svc, fakeCounter{"c1": 3}, status)
	router := SetupRoutes(cfg, handler, NewRateLimiter(rps, int(rps*2)))
	return &testServer{router: router, handler: handler, service: svc, status: status}
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func validToken(t *testing.T) string {
	return token(t, jwt.MapClaims{
		"api_key": "key-1",
		"iss":     "twinscan",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
}

func (s *testServer) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t, 100)
	w := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, 100)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token abc"},
		{"bad signature", "Bearer " + func() string {
			signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"iss": "twinscan",
				"exp": time.Now().Add(time.Hour).Unix(),
			}).SignedString([]byte("other-secret"))
			return signed
		}()},
		{"expired", "Bearer " + token(t, jwt.MapClaims{"iss": "twinscan", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"wrong issuer", "Bearer " + token(t, jwt.MapClaims{"iss": "someone", "exp": time.Now().Add(time.Hour).Unix()})},
		{"no expiry", "Bearer " + token(t, jwt.MapClaims{"iss": "twinscan"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/corpora/c1/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
		})
	}
}

func TestComputeAccepted(t *testing.T) {
	s := newTestServer(t, 100)
	w := s.do(t, http.MethodPost, "/api/v1/compute", `{"corpusId":"c1"}`, validToken(t))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp models.ComputeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StepInitiated, resp.Step)
	assert.Equal(t, "c1", resp.CorpusID)
	assert.NotEmpty(t, resp.RunID)

	s.handler.Wait()
	runs := s.service.computed()
	require.Len(t, runs, 1)
	assert.Equal(t, plagiarism.GroupSelfCheck, runs[0].Mode)
	assert.Equal(t, 10.0, runs[0].ThresholdPercent)
	assert.Equal(t, resp.RunID, runs[0].RunID)

	step, _ := s.status.GetStatus(context.Background(), "c1")
	assert.Equal(t, models.StepInitiated, step)
}

func TestComputeOneToMany(t *testing.T) {
	s := newTestServer(t, 100)
	w := s.do(t, http.MethodPost, "/api/v1/compute",
		`{"corpusId":"c1","mode":"one_to_many","target":"a.py","threshold":25}`, validToken(t))
	require.Equal(t, http.StatusAccepted, w.Code)

	s.handler.Wait()
	runs := s.service.computed()
	require.Len(t, runs, 1)
	assert.Equal(t, plagiarism.OneToMany, runs[0].Mode)
	assert.Equal(t, "a.py", runs[0].Target)
	assert.Equal(t, 25.0, runs[0].ThresholdPercent)
}

func TestComputeRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing corpus", `{}`, "INVALID_REQUEST"},
		{"malformed", `{"corpusId":`, "INVALID_REQUEST"},
		{"unknown mode", `{"corpusId":"c1","mode":"pairwise"}`, "INVALID_MODE"},
		{"target missing", `{"corpusId":"c1","mode":"one_to_many"}`, "INVALID_TARGET"},
		{"threshold too high", `{"corpusId":"c1","threshold":150}`, "INVALID_THRESHOLD"},
		{"threshold negative", `{"corpusId":"c1","threshold":-1}`, "INVALID_THRESHOLD"},
		{"unknown corpus", `{"corpusId":"c9"}`, "CORPUS_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 100)
			w := s.do(t, http.MethodPost, "/api/v1/compute", tt.body, validToken(t))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
			assert.Empty(t, s.service.computed())
		})
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, 100)
	w := s.do(t, http.MethodGet, "/api/v1/corpora/c1/status", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"step":"completed"`)

	var resp struct {
		LastRun *models.RunReport `json:"lastRun"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "run-7", resp.LastRun.RunID)
	assert.Equal(t, 1, resp.LastRun.SuspectCount)

	w = s.do(t, http.MethodGet, "/api/v1/corpora/never-run/status", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lastRun":null`)
}

func TestMatrixCSV(t *testing.T) {
	s := newTestServer(t, 100)
	w := s.do(t, http.MethodGet, "/api/v1/corpora/c1/matrix.csv", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "a.py", "b.py", "c.py"}, rows[0])
	assert.Equal(t, "90.00%", rows[1][2])
}

func TestSuspects(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/v1/corpora/c1/suspects", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Threshold float64                  `json:"threshold"`
		Suspects  []models.SuspectResponse `json:"suspects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10.0, resp.Threshold)
	require.Len(t, resp.Suspects, 2)
	assert.Equal(t, "a.py", resp.Suspects[0].FileA)
	assert.Equal(t, "b.py", resp.Suspects[0].FileB)
	assert.Equal(t, "90.00%", resp.Suspects[0].Percent)

	w = s.do(t, http.MethodGet, "/api/v1/corpora/c1/suspects?threshold=50", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Suspects, 1)

	for _, bad := range []string{"abc", "101", "-3"} {
		w = s.do(t, http.MethodGet, "/api/v1/corpora/c1/suspects?threshold="+bad, "", validToken(t))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
		assert.Equal(t, "INVALID_THRESHOLD", errorCode(t, w))
	}
}

func TestRanking(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/v1/corpora/c1/ranking?target=c.py", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Ranking []models.RankingResponse `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Ranking, 2)
	assert.Equal(t, "b.py", resp.Ranking[0].File)
	assert.Equal(t, plagiarism.LabelSuspect, resp.Ranking[0].Label)
	assert.Equal(t, "a.py", resp.Ranking[1].File)
	assert.Equal(t, plagiarism.LabelClear, resp.Ranking[1].Label)

	w = s.do(t, http.MethodGet, "/api/v1/corpora/c1/ranking", "", validToken(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/corpora/c1/ranking?target=zz.py", "", validToken(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TARGET_NOT_FOUND", errorCode(t, w))
}

func TestReport(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/v1/corpora/c1/report?a=a.py&b=b.py", "", validToken(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "<html>a vs b</html>", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/corpora/c1/report?a=a.py&b=missing.py", "", validToken(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REPORT_NOT_AVAILABLE", errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/corpora/c1/report?a=a.py", "", validToken(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 0.001)
	bearer := validToken(t)

	first := s.do(t, http.MethodGet, "/api/v1/corpora/c1/status", "", bearer)
	assert.Equal(t, http.StatusOK, first.Code)

	second := s.do(t, http.MethodGet, "/api/v1/corpora/c1/status", "", bearer)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, second))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.GetLimiter("a")
	rl.GetLimiter("b")

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, rl.Cleanup(time.Millisecond))
}
