package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpilot/internal/apperrors"
	"adpilot/internal/models"
	"adpilot/internal/state"
)

const (
	operator = "ops@rosa.example"
	bizKey   = "act_1"
)

type fakeConns struct {
	conn   *models.BusinessConnection
	panics bool
}

func (f *fakeConns) Connection(_ context.Context, identity string) (*models.BusinessConnection, error) {
	if f.panics {
		panic("directory exploded")
	}
	if f.conn == nil {
		return nil, apperrors.Configuration("business.connection", "no business connected for %s", identity)
	}
	return f.conn, nil
}

type fakeText struct {
	mu      sync.Mutex
	prompts []string
	out     string
	err     error
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

type fakeImage struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (f *fakeImage) GenerateImage(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.url, f.err
}

// recordingStore remembers the stage of every document written.
type recordingStore struct {
	*state.MemoryStore
	mu     sync.Mutex
	stages []state.Stage
}

func (r *recordingStore) Put(ctx context.Context, identity, business string, doc json.RawMessage) error {
	var head struct {
		Stage state.Stage `json:"stage"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return err
	}
	r.mu.Lock()
	r.stages = append(r.stages, head.Stage)
	r.mu.Unlock()
	return r.MemoryStore.Put(ctx, identity, business, doc)
}

func (r *recordingStore) count(s state.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.stages {
		if got == s {
			n++
		}
	}
	return n
}

func singleBusiness() *models.BusinessConnection {
	return &models.BusinessConnection{
		Identity:    operator,
		BusinessKey: bizKey,
		PageID:      "p1",
		WebsiteURL:  "https://rosa.example",
		Phone:       "555-0100",
		Assets: []models.BusinessAsset{
			{PageID: "p1", Name: "Rosa's Bakery", InstagramID: "ig1"},
		},
	}
}

type harness struct {
	machine *Machine
	store   *recordingStore
	manager *state.Manager
	conns   *fakeConns
	text    *fakeText
	image   *fakeImage
}

func newHarness(conn *models.BusinessConnection) *harness {
	h := &harness{
		store: &recordingStore{MemoryStore: state.NewMemoryStore()},
		conns: &fakeConns{conn: conn},
		text:  &fakeText{out: `{"caption":"Fresh bread daily","hashtags":["bread","bakery"]}`},
		image: &fakeImage{url: "https://img.example/bread.png"},
	}
	h.manager = state.NewManager(h.store)
	h.machine = NewMachine(h.manager, h.conns, h.text, h.image, zap.NewNop())
	return h
}

func (h *harness) say(t *testing.T, msg string) Response {
	t.Helper()
	return h.machine.Handle(context.Background(), Turn{Identity: operator, Message: msg})
}

func (h *harness) load(t *testing.T) *state.IntakeState {
	t.Helper()
	st, err := h.manager.Load(context.Background(), operator, bizKey)
	require.NoError(t, err)
	return st
}

func TestContextCompletenessReachesAssetResolutionOnce(t *testing.T) {
	tests := []struct {
		name  string
		turns []string
	}{
		{"text accumulated across turns", []string{"create a post", "hi", "bakery sale"}},
		{"url after empty topic", []string{"create a post about", "https://rosa.example/menu"}},
		{"everything at once", []string{"create a post about our new sourdough loaves"}},
		{"bare www link", []string{"create a post", "ok", "www.rosa.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(singleBusiness())
			last := len(tt.turns) - 1
			for i, msg := range tt.turns[:last] {
				resp := h.say(t, msg)
				require.True(t, resp.Handled, "turn %d", i)
				assert.NotEmpty(t, resp.Question, "turn %d", i)
				assert.Equal(t, state.StageContextResolution, resp.Stage, "turn %d", i)
				assert.Zero(t, h.store.count(state.StageAssetResolution), "turn %d", i)
			}

			resp := h.say(t, tt.turns[last])
			assert.Empty(t, resp.Error)
			assert.Equal(t, state.StagePreview, resp.Stage)
			assert.Contains(t, resp.Question, "Fresh bread daily")
			assert.Equal(t, 1, h.store.count(state.StageAssetResolution))
		})
	}
}

func TestCancellationClearsAtAnyStage(t *testing.T) {
	stages := []state.Stage{
		state.StageBusinessResolution,
		state.StageBusinessResolutionWaiting,
		state.StageContextResolution,
		state.StageAssetResolution,
		state.StageContentGeneration,
		state.StagePreview,
		state.StageCompleted,
	}
	for _, stage := range stages {
		t.Run(string(stage), func(t *testing.T) {
			h := newHarness(singleBusiness())
			require.NoError(t, h.manager.Save(context.Background(), operator, bizKey, &state.IntakeState{
				Stage:         stage,
				BusinessID:    "p1",
				CampaignState: &state.CampaignState{Objective: state.OrganicPostObjective},
			}))

			resp := h.say(t, "Cancel")
			assert.True(t, resp.Handled)
			assert.Equal(t, CancelAck, resp.Message)
			assert.Nil(t, h.load(t))
		})
	}
}

func TestNoSessionAndNoTriggerIsNotHandled(t *testing.T) {
	h := newHarness(singleBusiness())
	assert.False(t, h.say(t, "hello there").Handled)
	assert.False(t, h.say(t, "cancel").Handled)
	assert.Nil(t, h.load(t))
}

func TestMissingConnectionOnTriggerIsConfigurationError(t *testing.T) {
	h := newHarness(nil)
	resp := h.say(t, "create a post")
	assert.True(t, resp.Handled)
	assert.Contains(t, resp.Error, "no business connected")
}

func TestNoEligibleBusinessFails(t *testing.T) {
	conn := singleBusiness()
	conn.Assets[0].InstagramID = ""
	h := newHarness(conn)

	resp := h.say(t, "create a post about bread")
	assert.Contains(t, resp.Error, "Instagram business account")
	assert.Nil(t, h.load(t))
}

func TestAmbiguousBusinessWaitsForConfirmation(t *testing.T) {
	conn := singleBusiness()
	conn.PageID = "p2"
	conn.Assets = append(conn.Assets, models.BusinessAsset{PageID: "p2", Name: "Rosa's Catering", InstagramID: "ig2"})
	h := newHarness(conn)

	resp := h.say(t, "create a post about our wedding menu")
	assert.Equal(t, state.StageBusinessResolutionWaiting, resp.Stage)
	assert.Contains(t, resp.Question, "Rosa's Catering, Rosa's Bakery")

	again := h.say(t, "hmm")
	assert.Equal(t, state.StageBusinessResolutionWaiting, again.Stage)
	assert.Equal(t, resp.Question, again.Question)

	done := h.say(t, "yes")
	assert.Equal(t, state.StagePreview, done.Stage)
	st := h.load(t)
	assert.Equal(t, "p2", st.BusinessID)
	assert.Equal(t, "ig2", st.InstagramID)
	assert.Equal(t, "our wedding menu", st.Context.RawIntent)
	assert.Empty(t, st.Candidates)
}

func TestAmbiguousBusinessPickedByName(t *testing.T) {
	conn := singleBusiness()
	conn.Assets = append(conn.Assets, models.BusinessAsset{PageID: "p2", Name: "Rosa's Catering", InstagramID: "ig2"})
	h := newHarness(conn)

	h.say(t, "create a post")
	resp := h.say(t, "catering")
	assert.Equal(t, state.StageContextResolution, resp.Stage)
	assert.Equal(t, "p2", h.load(t).BusinessID)
}

func TestImageFailureIsFatalAndKeepsCommittedState(t *testing.T) {
	h := newHarness(singleBusiness())
	h.image.err = errors.New("quota exceeded")

	resp := h.say(t, "create a post about our new sourdough loaves")
	assert.True(t, resp.Handled)
	assert.Contains(t, resp.Error, "image generation failed")
	assert.Equal(t, state.StageContentGeneration, resp.Stage)

	st := h.load(t)
	require.NotNil(t, st)
	assert.Equal(t, state.StageContentGeneration, st.Stage)
	assert.Empty(t, st.Content.ImageURL)
	assert.Zero(t, h.store.count(state.StagePreview))
}

func TestCaptionFailureFallsBack(t *testing.T) {
	h := newHarness(singleBusiness())
	h.text.err = errors.New("model overloaded")

	resp := h.say(t, "create a post about our new sourdough loaves")
	assert.Empty(t, resp.Error)
	assert.Equal(t, state.StagePreview, resp.Stage)

	st := h.load(t)
	assert.Equal(t, st.Content.ImageURL, resp.ImageURL)
	assert.Equal(t, "Our new sourdough loaves - discover it at Rosa's Bakery!\nCall 555-0100 | https://rosa.example", st.Content.Caption)
	assert.Equal(t, []string{"#rosasbakery", "#new", "#discover"}, st.Content.Hashtags)
}

func TestAssetResolutionFallsBackToTextLogo(t *testing.T) {
	h := newHarness(singleBusiness())
	h.say(t, "create a post about our new sourdough loaves")

	st := h.load(t)
	assert.Equal(t, "text", st.Assets.Source)
	assert.Equal(t, "Rosa's Bakery", st.Assets.LogoText)
	assert.Equal(t, "Call 555-0100 | https://rosa.example", st.Assets.Footer)
}

func TestAssetResolutionPrefersStoredLogo(t *testing.T) {
	conn := singleBusiness()
	conn.Assets[0].LogoURL = "https://cdn.example/logo.png"
	h := newHarness(conn)
	h.say(t, "create a post about our new sourdough loaves")

	st := h.load(t)
	assert.Equal(t, "https://cdn.example/logo.png", st.Assets.LogoURL)
	assert.Equal(t, "business", st.Assets.Source)
}

func TestPreviewApprovalEmitsPublishIntent(t *testing.T) {
	h := newHarness(singleBusiness())
	h.say(t, "create a post about our new sourdough loaves")

	resp := h.say(t, "yes, publish it")
	assert.Equal(t, IntentPublish, resp.Intent)
	require.NotNil(t, resp.Payload)
	assert.Equal(t, "Fresh bread daily\n\n#bread #bakery", resp.Payload.Caption)
	assert.Equal(t, "https://img.example/bread.png", resp.Payload.ImageURL)
	assert.Equal(t, "ig1", resp.Payload.InstagramID)
	assert.Equal(t, bizKey, resp.Payload.BusinessKey)

	st := h.load(t)
	assert.Equal(t, state.StageCompleted, st.Stage)
	require.NotNil(t, st.CampaignState)
	assert.True(t, st.CampaignState.Launchable())

	next := h.say(t, "thanks")
	assert.Equal(t, completedNote, next.Message)
	assert.Nil(t, h.load(t))
}

func TestPreviewFeedbackRegenerates(t *testing.T) {
	h := newHarness(singleBusiness())
	h.say(t, "create a post about our new sourdough loaves")

	resp := h.say(t, "make it warmer and mention the weekend offer")
	assert.Equal(t, state.StagePreview, resp.Stage)
	assert.Equal(t, 2, h.image.calls)
	require.Len(t, h.text.prompts, 2)
	assert.Contains(t, h.text.prompts[1], "make it warmer and mention the weekend offer")
	assert.Empty(t, h.load(t).Context.Feedback)
	assert.Equal(t, 1, h.store.count(state.StageAssetResolution))
}

func TestQualifiedApprovalRegenerates(t *testing.T) {
	for _, msg := range []string{
		"ok, but make the background blue",
		"yes but shorter caption",
		"sure, change the image to a cake",
	} {
		t.Run(msg, func(t *testing.T) {
			h := newHarness(singleBusiness())
			h.say(t, "create a post about our new sourdough loaves")

			resp := h.say(t, msg)
			assert.Empty(t, resp.Intent)
			assert.Nil(t, resp.Payload)
			assert.Equal(t, state.StagePreview, resp.Stage)
			assert.Equal(t, 2, h.image.calls)
			require.Len(t, h.text.prompts, 2)
			assert.Contains(t, h.text.prompts[1], msg)
		})
	}
}

func TestRegenerationReplacesCreative(t *testing.T) {
	h := newHarness(singleBusiness())
	h.say(t, "create a post about our new sourdough loaves")
	require.Equal(t, []string{"bread", "bakery"}, h.load(t).CampaignState.Creative.Hashtags)

	h.text.out = `{"caption":"Warm loaves all weekend","hashtags":[]}`
	h.image.url = "https://img.example/weekend.png"
	resp := h.say(t, "make it warmer")
	require.Empty(t, resp.Error)

	creative := h.load(t).CampaignState.Creative
	require.NotNil(t, creative)
	assert.Equal(t, "Warm loaves all weekend", creative.PrimaryText)
	assert.Equal(t, "https://img.example/weekend.png", creative.ImageURL)
	assert.Empty(t, creative.Hashtags)
}

func TestDraftOnlyDocumentIsNotASession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(singleBusiness())
	_, err := h.manager.UpdateCampaign(ctx, operator, bizKey, &state.CampaignState{
		Objective: "TRAFFIC",
		Budget:    &state.Budget{Amount: 500, Currency: "INR", Type: "DAILY"},
	})
	require.NoError(t, err)

	assert.False(t, h.say(t, "budget 700 daily").Handled)
	assert.False(t, h.say(t, "cancel").Handled)
	require.NotNil(t, h.load(t).CampaignState)

	resp := h.say(t, "create a post about fresh bread")
	require.Empty(t, resp.Error)
	assert.Equal(t, state.StagePreview, resp.Stage)

	st := h.load(t)
	require.NotNil(t, st.CampaignState)
	require.NotNil(t, st.CampaignState.Budget)
	assert.Equal(t, 500.0, st.CampaignState.Budget.Amount)
	assert.True(t, st.CampaignState.Launchable())
}

func TestPanicIsRecovered(t *testing.T) {
	h := newHarness(singleBusiness())
	h.conns.panics = true

	resp := h.say(t, "create a post")
	assert.True(t, resp.Handled)
	assert.True(t, strings.HasPrefix(resp.Error, "Something went wrong"))
}

func TestAdvanceIsForwardOnly(t *testing.T) {
	st := &state.IntakeState{Stage: state.StagePreview}
	require.Error(t, advance(st, state.StageContextResolution))
	assert.Equal(t, state.StagePreview, st.Stage)
	require.NoError(t, advance(st, state.StageCompleted))
}
