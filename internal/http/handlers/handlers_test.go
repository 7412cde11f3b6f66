package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
	"imagestudio/internal/middleware"
	"imagestudio/internal/pipeline"
	"imagestudio/internal/storage"
)

type stubAnalyzer struct {
	desc string
	err  error
}

func (s stubAnalyzer) Analyze(ctx context.Context, img domain.ImagePayload, instruction string) (string, error) {
	return s.desc, s.err
}

type stubGenerator struct {
	store storage.ObjectStore
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationOutput, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	key := "generated/" + req.UserID + "/img.png"
	url, err := s.store.Put(ctx, key, []byte("png"), "image/png")
	if err != nil {
		return nil, err
	}
	return &domain.GenerationOutput{URL: url, Prompt: req.Prompt, StorageKey: key, MediaType: "image/png"}, nil
}

// memoryDB keeps counters like the SQL store does: recording bumps them,
// reads return them.
type memoryDB struct {
	mu     sync.Mutex
	state  domain.QuotaState
	images []domain.GeneratedArtifact
}

func (m *memoryDB) GetUserSubscription(ctx context.Context, userID string) (*domain.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.UserID = userID
	return &s, nil
}

func (m *memoryDB) RecordGeneratedImage(ctx context.Context, a *domain.GeneratedArtifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Style.Specialty() {
		m.state.GhibliImagesGenerated++
	} else {
		m.state.ImagesGenerated++
	}
	rec := *a
	rec.ID = "img-" + string(rune('a'+len(m.images)))
	m.images = append([]domain.GeneratedArtifact{rec}, m.images...)
	return rec.ID, nil
}

func (m *memoryDB) ListUserImages(ctx context.Context, userID string, limit int) ([]domain.GeneratedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GeneratedArtifact(nil), m.images...), nil
}

type testEnv struct {
	app   *App
	db    *memoryDB
	gen   *stubGenerator
	store *storage.FileStore
}

func newTestEnv(t *testing.T, analyzer pipeline.Analyzer) *testEnv {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "http://localhost/static")
	require.NoError(t, err)
	db := &memoryDB{state: domain.QuotaState{
		Tier:              domain.TierFree,
		ImagesLimit:       10,
		GhibliImagesLimit: 5,
		LastRefresh:       time.Now().UTC(),
	}}
	gen := &stubGenerator{store: store}
	logger := infra.NopLogger()
	p := pipeline.New(
		pipeline.NewAnalysisOrchestrator(analyzer, nil, logger),
		pipeline.NewGenerationOrchestrator(gen, db, "standard", logger),
		pipeline.Options{},
		logger,
	)
	app := NewApp(Deps{Pipeline: p, Subscriptions: db, Images: db, Store: store, Logger: logger, MaxConcurrentRuns: 2})
	return &testEnv{app: app, db: db, gen: gen, store: store}
}

func authed(r *http.Request) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), "user-1"))
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, url, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return authed(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGenerateFromUpload(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{desc: "A tabby cat asleep on a windowsill."})
	rec := httptest.NewRecorder()
	env.app.GenerateFromUpload(rec, multipartRequest(t, "/v1/images/from-upload", "image/png", pngData(t),
		map[string]string{"style": "watercolor", "aspect_ratio": "4:3"}))

	require.Equal(t, http.StatusForbidden, rec.Code, "watercolor is not in FREE")
	body := decode(t, rec)
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.Equal(t, string(domain.QuotaStyleNotInTier), body["reason"])
	assert.Zero(t, env.gen.calls)

	rec = httptest.NewRecorder()
	env.app.GenerateFromUpload(rec, multipartRequest(t, "/v1/images/from-upload", "image/png", pngData(t),
		map[string]string{"style": "illustration", "aspect_ratio": "4:3"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StateCompleted, res.State)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, "A tabby cat asleep on a windowsill.", res.Artifact.Prompt)
	assert.Equal(t, domain.AspectLandscape, res.Artifact.AspectRatio)
	assert.Equal(t, 1, res.Quota.ImagesGenerated)
	assert.NotEmpty(t, res.Preview)
}

func TestUploadErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name     string
		analyzer pipeline.Analyzer
		ctype    string
		data     []byte
		want     int
		code     string
	}{
		{"not an image", stubAnalyzer{desc: "x"}, "application/pdf", []byte("%PDF-1.4"), http.StatusUnsupportedMediaType, "invalid_upload"},
		{"png declared as octet-stream", stubAnalyzer{desc: "x"}, "application/octet-stream", nil, http.StatusUnsupportedMediaType, "invalid_upload"},
		{"analysis fails without marker", stubAnalyzer{err: errors.New("permission denied")}, "image/png", nil, http.StatusBadGateway, "analysis_failed"},
		{"fallback exhausted", stubAnalyzer{err: errors.New("Failed to analyze image")}, "image/png", nil, http.StatusBadGateway, "analysis_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.analyzer)
			data := tt.data
			if data == nil {
				data = pngData(t)
			}
			rec := httptest.NewRecorder()
			env.app.AnalyzeUpload(rec, multipartRequest(t, "/v1/uploads/analyze", tt.ctype, data, nil))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode(t, rec)["error"])
		})
	}
}

func TestAnalyzeUploadRejectsOversizeSpecialty(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{desc: "x"})
	big := append(pngData(t), bytes.Repeat([]byte{0}, int(pipeline.SpecialtyUploadLimit))...)
	rec := httptest.NewRecorder()
	env.app.AnalyzeUpload(rec, multipartRequest(t, "/v1/uploads/analyze", "image/png", big, map[string]string{"style": "ghibli"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, string(domain.ValidationTooLarge), decode(t, rec)["reason"])
}

func TestAnalyzeUploadRejectsChunkedBodyOverCap(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{desc: "x"})
	big := append(pngData(t), bytes.Repeat([]byte{0}, int(pipeline.GeneralUploadLimit)+2<<20)...)
	req := multipartRequest(t, "/v1/uploads/analyze", "image/png", big, nil)
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	env.app.AnalyzeUpload(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, string(domain.ValidationTooLarge), body["reason"])
	msg, _ := body["message"].(string)
	assert.NotContains(t, msg, "-1")
	assert.Contains(t, msg, strconv.FormatInt(pipeline.GeneralUploadLimit, 10))
}

func TestAnalyzeUploadRejectsNonMultipart(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{desc: "x"})
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/uploads/analyze", strings.NewReader("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.app.AnalyzeUpload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImagesGenerateAndGallery(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{})
	env.db.state.GhibliImagesGenerated = 5

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := authed(httptest.NewRequest(http.MethodPost, "/v1/images/generate", strings.NewReader(body)))
		env.app.ImagesGenerate(rec, req)
		return rec
	}

	rec := post(`{"prompt":"a cat bus","style":"ghibli"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(domain.QuotaStyleLimitReached), decode(t, rec)["reason"])

	rec = post(`{"prompt":"   ","style":"anime"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "anime is not in FREE and the gate runs first")

	rec = post(`{"prompt":"  ","style":"photorealistic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_prompt", decode(t, rec)["error"])

	rec = post(`{"prompt":"a lighthouse at dusk"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.gen.calls)

	env.gen.err = errors.New("upstream 503")
	rec = post(`{"prompt":"again"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "upstream 503")

	rec = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.app.ImagesList(rec, authed(httptest.NewRequest(http.MethodGet, "/v1/images", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "a lighthouse at dusk", items[0].(map[string]any)["prompt"])
	assert.NotContains(t, rec.Body.String(), "storage_key")

	rec = httptest.NewRecorder()
	env.app.ImagesArchive(rec, authed(httptest.NewRequest(http.MethodGet, "/v1/images/archive", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, []byte("png"), data)
}

func TestStylesAndQuota(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{})
	env.db.state.ImagesGenerated = 4

	rec := httptest.NewRecorder()
	env.app.Styles(rec, authed(httptest.NewRequest(http.MethodGet, "/v1/styles", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	var styles struct {
		Tier   domain.Tier  `json:"tier"`
		Styles []styleEntry `json:"styles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &styles))
	assert.Equal(t, domain.TierFree, styles.Tier)
	allowed := map[domain.Style]bool{}
	for _, s := range styles.Styles {
		allowed[s.Style] = s.Allowed
	}
	assert.True(t, allowed[domain.StyleGhibli])
	assert.False(t, allowed[domain.StylePixelArt])

	rec = httptest.NewRecorder()
	env.app.Quota(rec, authed(httptest.NewRequest(http.MethodGet, "/v1/quota", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 4, body["images_generated"])
	assert.EqualValues(t, 6, body["general_remaining"])
	assert.EqualValues(t, 5, body["specialty_remaining"])
}

func TestHandlersRequireUser(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{})
	for name, h := range map[string]http.HandlerFunc{
		"styles":  env.app.Styles,
		"quota":   env.app.Quota,
		"list":    env.app.ImagesList,
		"archive": env.app.ImagesArchive,
		"clear":   env.app.ClearUpload,
		"analyze": env.app.AnalyzeUpload,
	} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestClearUpload(t *testing.T) {
	env := newTestEnv(t, stubAnalyzer{})
	rec := httptest.NewRecorder()
	env.app.ClearUpload(rec, authed(httptest.NewRequest(http.MethodDelete, "/v1/uploads/current", nil)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
