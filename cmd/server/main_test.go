package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/lifeline/internal/config"
	"github.com/Skufu/lifeline/internal/history"
	"github.com/Skufu/lifeline/internal/refine"
	"github.com/Skufu/lifeline/internal/server"
)

var modelFiles = map[string]string{
	"symptoms.json":            `["itching", "rash", "fever", "cough"]`,
	"encoder.json":             `["Cold", "Flu", "Measles"]`,
	"disease_symptom_map.json": `{"Flu": ["fever", "cough"], "Cold": ["cough"], "Measles": ["rash", "fever"]}`,
	"svm_model.json": `{"kind": "linear", "classes": [0, 1, 2],
		"coef": [[0, 0, -1, 1], [0, 0, 1, 1], [0, 1, 1, -1]], "intercept": [0, -0.5, 0]}`,
	"nb_model.json": `{"kind": "multinomial_nb", "classes": [0, 1, 2],
		"class_log_prior": [-1.0986, -1.0986, -1.0986],
		"feature_log_prob": [[-1.3863, -1.3863, -1.3863, -1.3863], [-1.3863, -1.3863, -1.3863, -1.3863], [-1.3863, -1.3863, -1.3863, -1.3863]]}`,
	"rf_model.json": `{"kind": "random_forest", "classes": [0, 1, 2], "trees": [{
		"children_left": [1, -1, 3, -1, -1], "children_right": [2, -1, 4, -1, -1],
		"feature": [2, -2, 3, -2, -2], "threshold": [0.5, -2, 0.5, -2, -2],
		"value": [[1, 1, 1], [3, 0, 0], [1, 1, 1], [0, 0, 4], [0, 5, 0]]}]}`,
}

func modelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range modelFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func TestOpenHistory(t *testing.T) {
	ctx := context.Background()
	log := quietLogger()

	store, err := openHistory(ctx, config.HistoryConfig{Backend: config.HistoryMemory}, log)
	require.NoError(t, err)
	assert.IsType(t, &history.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err = openHistory(ctx, config.HistoryConfig{Backend: config.HistorySQLite, SQLitePath: path}, log)
	require.NoError(t, err)
	assert.IsType(t, &history.SQLiteStore{}, store)
	require.NoError(t, store.Close())
	assert.FileExists(t, path)

	_, err = openHistory(ctx, config.HistoryConfig{Backend: "mongo"}, log)
	assert.Error(t, err)
}

func TestNewChooser(t *testing.T) {
	assert.IsType(t, refine.SplitChooser{}, newChooser(config.ModelConfig{Chooser: config.ChooserSplit}))
	assert.IsType(t, &refine.RandomChooser{}, newChooser(config.ModelConfig{Chooser: config.ChooserRandom, ChooserSeed: 7}))
}

func TestLoadEngineDegraded(t *testing.T) {
	log, hook := test.NewNullLogger()

	bundle, engine := loadEngine(config.ModelConfig{Dir: filepath.Join(t.TempDir(), "missing")}, log)
	assert.Nil(t, bundle)
	assert.Nil(t, engine)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestLoadEngine(t *testing.T) {
	bundle, engine := loadEngine(config.ModelConfig{Dir: modelDir(t), MaxRefinements: 2}, quietLogger())
	require.NotNil(t, engine)
	defer bundle.Close()
	assert.Equal(t, 2, engine.MaxRefinements())
}

func TestBuildEnrich(t *testing.T) {
	ctx := context.Background()

	svc, closeFn := buildEnrich(ctx, config.EnrichConfig{CacheSize: 4, CacheTTL: time.Minute}, quietLogger())
	defer closeFn()
	assert.False(t, svc.Available())

	svc, closeFn = buildEnrich(ctx, config.EnrichConfig{GeminiAPIKey: "key", RateLimit: 1}, quietLogger())
	defer closeFn()
	assert.True(t, svc.Available())

	// A bad shared cache URL only disables the shared tier.
	log, hook := test.NewNullLogger()
	svc, closeFn = buildEnrich(ctx, config.EnrichConfig{RedisURL: "not-a-url"}, log)
	defer closeFn()
	assert.NotNil(t, svc)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
}

func TestRouterHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := server.New(server.Deps{History: history.NewMemoryStore(), Logger: quietLogger()})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestServiceEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := quietLogger()

	bundle, engine := loadEngine(config.ModelConfig{Dir: modelDir(t), MaxRefinements: 3}, log)
	require.NotNil(t, engine)
	defer bundle.Close()
	gateway, closeFn := buildEnrich(context.Background(), config.EnrichConfig{}, log)
	defer closeFn()

	store := history.NewMemoryStore()
	router := server.New(server.Deps{Engine: engine, Enrich: gateway, History: store, Logger: log})

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/predict", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	w := post(`{"symptoms":["fever"],"username":"sam"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"possible_diseases":["Flu","Measles"],"ask_more_symptoms":["rash"],"refinement_count":0}`, w.Body.String())

	w = post(`{"symptoms":["fever"],"additional_symptoms":["rash"],"refinement_count":1,"username":"sam"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"disease":"Measles","matched":true,"source":"knowledge_base"}`, w.Body.String())

	entries, err := store.List(context.Background(), "sam")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Measles", entries[0].Disease)
	assert.Equal(t, []string{"rash", "fever"}, entries[0].Symptoms)
}
