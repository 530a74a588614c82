package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/engine"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/imaging"
	"github.com/abhisek/radgrade/internal/logging"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/scoring"
	"github.com/abhisek/radgrade/internal/store"
	"github.com/abhisek/radgrade/internal/vocab"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const caseID = "00013118_005"

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.CaseRepo().Put(context.Background(), clinical.Case{
		ID:       caseID,
		ImageRef: caseID + ".png",
		GroundTruthFindings: []clinical.Finding{
			{CanonicalID: "pneumothorax", Polarity: clinical.PolarityPresent},
		},
	}))

	v := vocab.Default()
	scorer, err := scoring.NewScorer(v, scoring.DefaultConfig())
	require.NoError(t, err)
	textM := &model.Static{ModelName: "fake-text", ModelKind: model.KindText}
	eng, err := engine.New(engine.DefaultConfig(), engine.Deps{
		Cases:      st.CaseRepo(),
		Events:     st.EventRepo(),
		Vocabulary: v,
		Predictor:  imaging.NewPredictor(nil, v, imaging.DefaultThreshold),
		Pipeline:   extract.NewPipeline(v, textM, extract.DefaultOptions()),
		Scorer:     scorer,
		Alignment:  align.DefaultOptions(),
		Logger:     logging.Discard(),
		Now:        func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	srv := New(eng, st.CaseRepo(), v.Version(), Options{CORSOrigins: []string{"http://localhost:5000"}}, logging.Discard())
	return srv, st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAssess(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodPost, "/v1/assessments",
		`{"caseId":"00013118_005","reportText":"No pneumothorax. Mild cardiomegaly noted."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, caseID, body["caseId"])
	assert.Contains(t, body, "processingLatencyMs")
	for _, k := range []string{"pillar1", "pillar2", "pillar3", "pillar4", "pillar5", "summary", "provenance"} {
		assert.Contains(t, body, k)
	}

	p3, ok := body["pillar3"].([]any)
	require.True(t, ok)
	require.Len(t, p3, 2)
	assert.Equal(t, string(align.KindContradiction), p3[0].(map[string]any)["kind"])

	prov := body["provenance"].(map[string]any)
	assert.Equal(t, []any{"image"}, prov["degraded"])
}

func TestAssess_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   engine.Code
	}{
		{"malformed json", `{"caseId":`, http.StatusBadRequest, engine.CodeInvalidInput},
		{"empty report", `{"caseId":"00013118_005","reportText":"  "}`, http.StatusBadRequest, engine.CodeInvalidInput},
		{"missing case id", `{"reportText":"No pneumothorax."}`, http.StatusBadRequest, engine.CodeInvalidInput},
		{"unknown case", `{"caseId":"99999999_000","reportText":"No pneumothorax."}`, http.StatusNotFound, engine.CodeCaseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/assessments", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, string(tt.wantCode), body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestAssess_BodyTooLarge(t *testing.T) {
	srv, st := newTestServer(t)
	small := New(srv.grader, st.CaseRepo(), "x", Options{MaxBodyBytes: 32}, logging.Discard())

	payload := `{"caseId":"00013118_005","reportText":"` + strings.Repeat("a", 200) + `"}`
	rec := do(t, small.Handler(), http.MethodPost, "/v1/assessments", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCases(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/v1/cases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = do(t, h, http.MethodGet, "/v1/cases/"+caseID+".png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var c clinical.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, caseID, c.ID)
	require.Len(t, c.GroundTruthFindings, 1)

	rec = do(t, h, http.MethodGet, "/v1/cases/absent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(engine.CodeCaseNotFound), decode(t, rec)["code"])
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["casesLoaded"])
	assert.Equal(t, vocab.Default().Version(), body["vocabularyVersion"])
	assert.Equal(t, map[string]any{"text": "fake-text@0.0.0"}, body["modelVersions"])
}

func TestStoreUnavailable(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	require.NoError(t, st.Close())

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])

	rec = do(t, h, http.MethodGet, "/v1/cases", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(engine.CodeStoreUnavailable), decode(t, rec)["code"])
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/assessments", nil)
	req.Header.Set("Origin", "http://localhost:5000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
