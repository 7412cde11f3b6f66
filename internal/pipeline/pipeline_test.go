package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestudio/internal/domain"
	"imagestudio/internal/imaging"
	"imagestudio/internal/infra"
)

type analyzeCall struct {
	payload     domain.ImagePayload
	instruction string
}

type fakeAnalyzer struct {
	mu        sync.Mutex
	responses []analyzeResponse
	calls     []analyzeCall
}

type analyzeResponse struct {
	desc string
	err  error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img domain.ImagePayload, instruction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, analyzeCall{payload: img, instruction: instruction})
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r.desc, r.err
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGenerator struct {
	mu        sync.Mutex
	err       error
	calls     []domain.GenerationRequest
	discarded []string
	started   chan struct{}
	release   chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GenerationOutput{
		URL:        "https://cdn.example.com/generated/" + req.UserID + "/1.png",
		Prompt:     req.Prompt,
		StorageKey: "generated/" + req.UserID + "/1.png",
		MediaType:  "image/png",
	}, nil
}

func (f *fakeGenerator) Discard(ctx context.Context, out *domain.GenerationOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, out.StorageKey)
	return nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakePersistence returns states in order; the last one repeats. It never
// changes a counter on record, which models a stale backend.
type fakePersistence struct {
	mu        sync.Mutex
	states    []domain.QuotaState
	reads     int
	recorded  []domain.GeneratedArtifact
	recordErr error
}

func (f *fakePersistence) GetUserSubscription(ctx context.Context, userID string) (*domain.QuotaState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.reads
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	f.reads++
	s := f.states[idx]
	s.UserID = userID
	return &s, nil
}

func (f *fakePersistence) RecordGeneratedImage(ctx context.Context, a *domain.GeneratedArtifact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return "", f.recordErr
	}
	f.recorded = append(f.recorded, *a)
	return "img-1", nil
}

type harness struct {
	analyzer  *fakeAnalyzer
	generator *fakeGenerator
	store     *fakePersistence
	pipeline  *Pipeline
}

func newHarness(states ...domain.QuotaState) *harness {
	if len(states) == 0 {
		states = []domain.QuotaState{freeState(0, 0)}
	}
	h := &harness{
		analyzer:  &fakeAnalyzer{responses: []analyzeResponse{{desc: "A red fox curled up in fresh snow at dawn."}}},
		generator: &fakeGenerator{},
		store:     &fakePersistence{states: states},
	}
	logger := infra.NopLogger()
	h.pipeline = New(
		NewAnalysisOrchestrator(h.analyzer, nil, logger),
		NewGenerationOrchestrator(h.generator, h.store, "standard", logger),
		Options{},
		logger,
	)
	return h
}

func freeState(general, ghibli int) domain.QuotaState {
	return domain.QuotaState{
		Tier:                  domain.TierFree,
		ImagesGenerated:       general,
		ImagesLimit:           10,
		GhibliImagesGenerated: ghibli,
		GhibliImagesLimit:     5,
		LastRefresh:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(w/2, h/2, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegCandidate(t *testing.T, size int64) domain.UploadCandidate {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return domain.UploadCandidate{Filename: "photo.jpg", MediaType: "image/jpeg", Size: size, Data: buf.Bytes()}
}

func TestSubmitUploadHappyPathStates(t *testing.T) {
	h := newHarness(freeState(2, 0), freeState(3, 0))

	res, err := h.pipeline.SubmitUpload(context.Background(), UploadRequest{
		UserID:      "user-1",
		Candidate:   jpegCandidate(t, 3<<20),
		Style:       domain.StylePhotorealistic,
		AspectRatio: domain.AspectWide,
	})
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateIdle, StateValidating, StatePreviewing, StateAnalyzing,
		StateAnalyzed, StateQuotaCheck, StateGenerating, StateCompleted,
	}, res.History)
	assert.Equal(t, StateCompleted, res.State)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, "img-1", res.Artifact.ID)
	assert.Equal(t, "A red fox curled up in fresh snow at dawn.", res.Artifact.Prompt)
	assert.Equal(t, domain.AspectWide, res.Artifact.AspectRatio)
	assert.Contains(t, res.Preview, "data:image/jpeg;base64,")
	require.NotNil(t, res.Quota)
	assert.Equal(t, 3, res.Quota.ImagesGenerated)

	require.Len(t, h.analyzer.calls, 1)
	assert.Equal(t, AnalysisInstruction, h.analyzer.calls[0].instruction)
	require.Len(t, h.generator.calls, 1)
	assert.Equal(t, "standard", h.generator.calls[0].Quality)
}

func TestSubmitUploadRejectsNonImageBeforeNetwork(t *testing.T) {
	h := newHarness()
	res, err := h.pipeline.SubmitUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: domain.UploadCandidate{Filename: "notes.txt", MediaType: "text/plain", Size: 12, Data: []byte("hello world!")},
		Style:     domain.StylePhotorealistic,
	})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.ValidationUnsupportedType, ve.Reason)
	assert.Equal(t, []State{StateIdle, StateValidating, StateFailed}, res.History)
	assert.Zero(t, h.analyzer.callCount())
	assert.Zero(t, h.generator.callCount())
	assert.Zero(t, h.store.reads)
}

func TestSubmitUploadRejectsOversizeForSpecialtyFlow(t *testing.T) {
	h := newHarness()
	_, err := h.pipeline.SubmitUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: jpegCandidate(t, 6<<20),
		Style:     domain.StyleGhibli,
	})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.ValidationTooLarge, ve.Reason)
	assert.Equal(t, SpecialtyUploadLimit, ve.Limit)
	assert.Zero(t, h.analyzer.callCount())

	// The same file is fine for the general flow.
	h = newHarness()
	_, err = h.pipeline.SubmitUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: jpegCandidate(t, 6<<20),
		Style:     domain.StylePhotorealistic,
	})
	require.NoError(t, err)
}

func TestAnalysisFallbackRetriesOnceWithDownscaledJPEG(t *testing.T) {
	h := newHarness()
	h.analyzer.responses = []analyzeResponse{
		{err: errors.New("Failed to convert image: payload too large")},
		{desc: "A wide mountain panorama."},
	}

	res, err := h.pipeline.SubmitUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: domain.UploadCandidate{Filename: "pano.png", MediaType: "image/png", Size: 1 << 20, Data: pngBytes(t, 2000, 1000)},
		Style:     domain.StyleDigitalArt,
	})
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateIdle, StateValidating, StatePreviewing, StateAnalyzing, StateAnalysisFallback,
		StateAnalyzed, StateQuotaCheck, StateGenerating, StateCompleted,
	}, res.History)
	assert.True(t, res.Analysis.Degraded)
	assert.Equal(t, "downscale_jpeg", res.Analysis.Strategy)

	require.Len(t, h.analyzer.calls, 2)
	retry := h.analyzer.calls[1].payload
	assert.Equal(t, "image/jpeg", retry.MediaType)
	w, hgt, err := imaging.Dimensions(retry.Data)
	require.NoError(t, err)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 512, hgt)
}

func TestAnalysisFallbackFailsAfterSingleRetry(t *testing.T) {
	h := newHarness()
	h.analyzer.responses = []analyzeResponse{{err: errors.New("failed to analyze image: model overloaded")}}

	res, err := h.pipeline.SubmitUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: domain.UploadCandidate{Filename: "a.png", MediaType: "image/png", Size: 2048, Data: pngBytes(t, 300, 300)},
		Style:     domain.StyleIllustration,
	})
	var fe *domain.AnalysisFallbackError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "all analysis methods failed")
	assert.Equal(t, 2, h.analyzer.callCount())
	assert.Zero(t, h.generator.callCount())
	assert.Equal(t, []State{StateIdle, StateValidating, StatePreviewing, StateAnalyzing, StateAnalysisFallback, StateFailed}, res.History)
}

func TestAnalysisErrorWithoutMarkerDoesNotFallBack(t *testing.T) {
	h := newHarness()
	h.analyzer.responses = []analyzeResponse{{err: errors.New("permission denied: api key invalid")}}

	res, err := h.pipeline.AnalyzeUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: jpegCandidate(t, 1024),
		Style:     domain.StylePhotorealistic,
	})
	var ae *domain.AnalysisError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 1, h.analyzer.callCount())
	assert.Equal(t, StateFailed, res.State)
	assert.NotContains(t, res.History, StateAnalysisFallback)
}

func TestEmptyDescriptionCountsAsFailure(t *testing.T) {
	h := newHarness()
	h.analyzer.responses = []analyzeResponse{{desc: "   "}, {desc: "A quiet harbor."}}

	res, err := h.pipeline.AnalyzeUpload(context.Background(), UploadRequest{
		UserID:    "user-1",
		Candidate: domain.UploadCandidate{Filename: "a.png", MediaType: "image/png", Size: 2048, Data: pngBytes(t, 200, 100)},
		Style:     domain.StylePhotorealistic,
	})
	require.NoError(t, err)
	assert.Equal(t, StateAnalyzed, res.State)
	assert.Equal(t, "A quiet harbor.", res.Analysis.Description)
	assert.Equal(t, 2, h.analyzer.callCount())
}

func TestGhibliAtSpecialtyLimitNeverCallsGenerator(t *testing.T) {
	h := newHarness(freeState(0, 5))

	res, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{
		UserID: "user-1",
		Prompt: "a cat bus in the rain",
		Style:  domain.StyleGhibli,
	})
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, domain.QuotaStyleLimitReached, qe.Reason)
	assert.Zero(t, h.generator.callCount())
	assert.Equal(t, []State{StateIdle, StateQuotaCheck, StateFailed}, res.History)
	require.NotNil(t, res.Quota)
	assert.Equal(t, 5, res.Quota.GhibliImagesGenerated)
}

func TestGeneralLimitReachedNeverCallsGenerator(t *testing.T) {
	h := newHarness(freeState(10, 0))
	_, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{
		UserID: "user-1",
		Prompt: "a lighthouse",
		Style:  domain.StylePhotorealistic,
	})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Zero(t, h.generator.callCount())
}

func TestQuotaIsReReadNotIncremented(t *testing.T) {
	stale := freeState(4, 0)
	h := newHarness(stale)

	res, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{
		UserID: "user-1",
		Prompt: "a lighthouse",
		Style:  domain.StylePhotorealistic,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.reads, "quota read before and after generation")
	assert.Len(t, h.store.recorded, 1)
	assert.Equal(t, 4, res.Quota.ImagesGenerated, "a stale store must stay visibly stale")
}

func TestGenerationErrorSurfacesWithoutRetry(t *testing.T) {
	h := newHarness()
	h.generator.err = errors.New("upstream 503: model unavailable")

	res, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{
		UserID: "user-1",
		Prompt: "a lighthouse",
		Style:  domain.StylePhotorealistic,
	})
	var ge *domain.GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Equal(t, 1, h.generator.callCount())
	assert.Empty(t, h.store.recorded)
	assert.Equal(t, StateFailed, res.State)
}

func TestRecordRaceDiscardsImage(t *testing.T) {
	h := newHarness()
	h.store.recordErr = domain.ErrQuotaExceeded

	_, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{
		UserID: "user-1",
		Prompt: "a lighthouse",
		Style:  domain.StyleGhibli,
	})
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, domain.QuotaStyleLimitReached, qe.Reason)
	assert.Equal(t, []string{"generated/user-1/1.png"}, h.generator.discarded)
}

func TestEmptyPromptIsRejected(t *testing.T) {
	h := newHarness()
	_, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{UserID: "user-1", Prompt: "  ", Style: domain.StylePhotorealistic})
	assert.ErrorIs(t, err, domain.ErrInvalidPrompt)
	assert.Zero(t, h.generator.callCount())
}

func TestClearSupersedesInFlightRun(t *testing.T) {
	h := newHarness()
	h.generator.started = make(chan struct{})
	h.generator.release = make(chan struct{})

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.pipeline.SubmitPrompt(context.Background(), PromptRequest{
			UserID: "user-1",
			Prompt: "a lighthouse",
			Style:  domain.StylePhotorealistic,
		})
		done <- outcome{res, err}
	}()

	<-h.generator.started
	h.pipeline.Clear("user-1")
	close(h.generator.release)

	out := <-done
	assert.ErrorIs(t, out.err, domain.ErrRunSuperseded)
	assert.Equal(t, StateFailed, out.res.State)
	assert.Nil(t, out.res.Artifact)
	assert.Len(t, h.store.recorded, 1, "a generated image is still counted")
}
