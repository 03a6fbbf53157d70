package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpilot/internal/apperrors"
	"adpilot/internal/campaign"
	"adpilot/internal/generation"
	"adpilot/internal/intake"
	"adpilot/internal/models"
	"adpilot/internal/organic"
	"adpilot/internal/runs"
	"adpilot/internal/state"
	"adpilot/internal/ws"
)

const operator = "ops@rosa.example"

type fakeIntake struct {
	resp  intake.Response
	turns []intake.Turn
}

func (f *fakeIntake) Handle(_ context.Context, turn intake.Turn) intake.Response {
	f.turns = append(f.turns, turn)
	return f.resp
}

type fakeBuilder struct {
	intents []campaign.Intent
	accts   []campaign.Account
	err     error
}

func (f *fakeBuilder) Build(_ context.Context, acct campaign.Account, in campaign.Intent) (*campaign.Result, error) {
	f.intents = append(f.intents, in)
	f.accts = append(f.accts, acct)
	res := &campaign.Result{RequestedObjective: "TRAFFIC", EffectiveObjective: "TRAFFIC", CampaignID: "c-1", AdIDs: []string{"ad-1"}}
	if f.err != nil {
		res.Error = f.err.Error()
		return res, f.err
	}
	res.OK = true
	return res, nil
}

type fakePublisher struct {
	posts []organic.Post
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, p organic.Post) (*organic.Result, error) {
	f.posts = append(f.posts, p)
	if f.err != nil {
		return &organic.Result{ContainerID: "ct-1"}, f.err
	}
	return &organic.Result{OK: true, ContainerID: "ct-1", MediaID: "m-1"}, nil
}

type fakeConns struct{ conn *models.BusinessConnection }

func (f fakeConns) Connection(context.Context, string) (*models.BusinessConnection, error) {
	if f.conn == nil {
		return nil, apperrors.Configuration("business.connection", "no business connected")
	}
	return f.conn, nil
}

type fakeRuns struct{ entries []runs.Entry }

func (f *fakeRuns) Record(_ context.Context, e runs.Entry) (*models.CampaignRun, error) {
	f.entries = append(f.entries, e)
	return &models.CampaignRun{RunID: "run-1", Success: e.Err == nil}, nil
}

type event struct {
	kind     string
	identity string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeNotifier) Publish(kind, identity string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{kind, identity})
}

type fixture struct {
	router    *Router
	intake    *fakeIntake
	builder   *fakeBuilder
	publisher *fakePublisher
	store     *state.Manager
	runs      *fakeRuns
	notify    *fakeNotifier
}

func connection() *models.BusinessConnection {
	return &models.BusinessConnection{
		Identity:         operator,
		BusinessKey:      "act_1",
		AdAccountID:      "1",
		PageID:           "p1",
		InstagramActorID: "ig1",
		AccessToken:      "user-token",
		WebsiteURL:       "https://rosa.example",
		Assets:           []models.BusinessAsset{{PageID: "p1", Name: "Rosa's Bakery", InstagramID: "ig1", PageToken: "page-token"}},
	}
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		intake:    &fakeIntake{},
		builder:   &fakeBuilder{},
		publisher: &fakePublisher{},
		store:     state.NewManager(state.NewMemoryStore()),
		runs:      &fakeRuns{},
		notify:    &fakeNotifier{},
	}
	f.router = NewRouter(f.intake, f.builder, f.publisher, fakeConns{connection()}, f.store, f.runs, f.notify, opts, zap.NewNop())
	return f
}

func launchable(objective string) *state.CampaignState {
	return &state.CampaignState{
		Objective: objective,
		Budget:    &state.Budget{Amount: 500, Currency: "INR", Type: "DAILY"},
		Creative:  &state.Creative{ImageURL: "https://img.example/" + objective + ".png", PrimaryText: "Fresh bread", DestinationURL: "https://rosa.example/menu"},
	}
}

func TestLaunchWithoutDraftIsValidationError(t *testing.T) {
	f := newFixture(Options{})
	reply := f.router.HandleTurn(context.Background(), intake.Turn{Identity: operator, Message: "launch campaign"})
	assert.Contains(t, reply.Error, "no campaign draft found")
	assert.Nil(t, reply.Result)
	assert.Empty(t, f.builder.intents)
}

func TestLaunchDraftBuildsAndCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	_, err := f.store.UpdateCampaign(ctx, operator, "act_1", launchable(state.OrganicPostObjective))
	require.NoError(t, err)

	reply := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "Launch campaign please"})
	require.Empty(t, reply.Error)
	assert.Contains(t, reply.Message, "c-1")

	require.Len(t, f.builder.intents, 1)
	in := f.builder.intents[0]
	assert.Empty(t, in.Objective)
	assert.Equal(t, "https://rosa.example/menu", in.DestinationURL)
	require.Len(t, in.AdSets, 1)
	assert.Equal(t, "https://img.example/ORGANIC_POST.png", in.AdSets[0].Creative.ImageURL)
	assert.Equal(t, "user-token", f.builder.accts[0].Token)

	st, err := f.store.Load(ctx, operator, "act_1")
	require.NoError(t, err)
	assert.Nil(t, st)

	require.Len(t, f.runs.entries, 1)
	assert.Equal(t, runs.KindCampaign, f.runs.entries[0].Kind)
	assert.Contains(t, f.notify.events, event{ws.EventRunResult, operator})

	again := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "launch campaign"})
	assert.Contains(t, again.Error, "no campaign draft found")
	assert.Len(t, f.builder.intents, 1)
}

func TestDraftCanBeRelaunchedAfterLaunch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	first := launchable("TRAFFIC")
	first.Creative.Headline = "Weekend loaves"
	first.Creative.Hashtags = []string{"bread"}
	_, err := f.router.UpdateDraft(ctx, operator, first)
	require.NoError(t, err)
	_, err = f.router.LaunchDraft(ctx, operator, "traffic")
	require.NoError(t, err)

	merged, err := f.router.UpdateDraft(ctx, operator, &state.CampaignState{
		Objective: "TRAFFIC",
		Budget:    &state.Budget{Amount: 800, Currency: "INR", Type: "DAILY"},
		Creative:  &state.Creative{ImageURL: "https://img.example/cake.png", PrimaryText: "Birthday cakes"},
	})
	require.NoError(t, err)
	assert.Equal(t, state.CampaignReadyToLaunch, merged.Stage)
	assert.Empty(t, merged.Creative.Headline)
	assert.Empty(t, merged.Creative.Hashtags)

	_, err = f.router.LaunchDraft(ctx, operator, "traffic")
	require.NoError(t, err)
	require.Len(t, f.builder.intents, 2)
	assert.Equal(t, "https://img.example/cake.png", f.builder.intents[1].AdSets[0].Creative.ImageURL)
	assert.Equal(t, 800.0, f.builder.intents[1].Budget.Amount)
}

func TestUpdateDraftStartsOverAfterCompletedDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	done := launchable("LEADS")
	done.Stage = state.CampaignCompleted
	_, err := f.store.UpdateCampaign(ctx, operator, "act_1", done)
	require.NoError(t, err)

	merged, err := f.router.UpdateDraft(ctx, operator, &state.CampaignState{Objective: "TRAFFIC"})
	require.NoError(t, err)
	assert.Equal(t, "TRAFFIC", merged.Objective)
	assert.Empty(t, merged.Stage)
	assert.Nil(t, merged.Creative)
	assert.False(t, merged.HasBudget())
}

func TestLaunchDraftPrefersPursuedObjective(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	_, err := f.store.UpdateCampaign(ctx, operator, "act_1", launchable(state.OrganicPostObjective))
	require.NoError(t, err)
	_, err = f.store.UpdateCampaign(ctx, operator, "act_2", launchable("TRAFFIC"))
	require.NoError(t, err)

	_, err = f.router.LaunchDraft(ctx, operator, "website traffic")
	require.NoError(t, err)
	require.Len(t, f.builder.intents, 1)
	assert.Equal(t, "https://img.example/TRAFFIC.png", f.builder.intents[0].AdSets[0].Creative.ImageURL)
	assert.Equal(t, "website traffic", f.builder.intents[0].Objective)

	_, err = f.router.LaunchDraft(ctx, operator, "")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/ORGANIC_POST.png", f.builder.intents[1].AdSets[0].Creative.ImageURL)
}

func TestLaunchDraftNeedsLaunchableState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	draft := launchable("TRAFFIC")
	draft.Creative.PrimaryText = ""
	_, err := f.store.UpdateCampaign(ctx, operator, "act_1", draft)
	require.NoError(t, err)

	_, err = f.router.LaunchDraft(ctx, operator, "")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	assert.Empty(t, f.builder.intents)
}

func TestLaunchFailureIsRecordedAndDraftKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	f.builder.err = apperrors.RemoteFatal("campaign.create", errors.New("(#1) unknown error"))
	_, err := f.store.UpdateCampaign(ctx, operator, "act_1", launchable("TRAFFIC"))
	require.NoError(t, err)

	reply := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "launch campaign"})
	assert.Contains(t, reply.Error, "unknown error")
	assert.NotNil(t, reply.Result)

	st, err := f.store.Load(ctx, operator, "act_1")
	require.NoError(t, err)
	assert.NotEqual(t, state.CampaignCompleted, st.CampaignState.Stage)
	require.Len(t, f.runs.entries, 1)
	assert.Error(t, f.runs.entries[0].Err)
}

func TestChatFieldsUpdateDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	reply := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "budget ₹500 per day, objective: traffic"})
	assert.Contains(t, reply.Message, "budget 500 INR daily")
	assert.Contains(t, reply.Message, "objective TRAFFIC")

	reply = f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "campaign name: Spring Loaves"})
	assert.Contains(t, reply.Message, "name Spring Loaves")

	st, err := f.store.Load(ctx, operator, "act_1")
	require.NoError(t, err)
	assert.Equal(t, "Spring Loaves", st.CampaignState.Name)
	assert.Equal(t, 500.0, st.CampaignState.Budget.Amount)
}

func TestUpdateDraftMarksReadyWhenLaunchable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	_, err := f.router.UpdateDraft(ctx, operator, &state.CampaignState{Creative: &state.Creative{ImageURL: "https://img.example/a.png"}})
	require.NoError(t, err)
	merged, err := f.router.UpdateDraft(ctx, operator, &state.CampaignState{Creative: &state.Creative{PrimaryText: "Fresh bread"}})
	require.NoError(t, err)

	assert.True(t, merged.Launchable())
	assert.Equal(t, state.CampaignReadyToLaunch, merged.Stage)
}

func TestUnrelatedMessageGetsHelp(t *testing.T) {
	f := newFixture(Options{})
	reply := f.router.HandleTurn(context.Background(), intake.Turn{Identity: operator, Message: "hello"})
	assert.Equal(t, helpText, reply.Message)
}

func TestIntakeRepliesArePassedThrough(t *testing.T) {
	f := newFixture(Options{})
	f.intake.resp = intake.Response{Handled: true, Question: "What should the post be about?", Stage: state.StageContextResolution}

	reply := f.router.HandleTurn(context.Background(), intake.Turn{Identity: operator, Message: "create a post"})
	assert.Equal(t, "What should the post be about?", reply.Question)
	assert.Equal(t, state.StageContextResolution, reply.Stage)
	assert.Contains(t, f.notify.events, event{ws.EventStageUpdate, operator})
}

func publishIntent() intake.Response {
	return intake.Response{
		Handled: true,
		Intent:  intake.IntentPublish,
		Stage:   state.StageCompleted,
		Payload: &intake.PublishPayload{BusinessKey: "act_1", PageID: "p1", InstagramID: "ig1", Caption: "Fresh\n\n#bread", ImageURL: "https://img.example/a.png"},
	}
}

func TestAutoExecutePublishesAndClears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{AutoExecute: true})
	f.intake.resp = publishIntent()
	require.NoError(t, f.store.Save(ctx, operator, "act_1", &state.IntakeState{Stage: state.StageCompleted}))

	reply := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "yes"})
	require.Empty(t, reply.Error)
	assert.Contains(t, reply.Message, "Published")

	require.Len(t, f.publisher.posts, 1)
	assert.Equal(t, organic.Post{InstagramID: "ig1", Token: "user-token", ImageURL: "https://img.example/a.png", Caption: "Fresh\n\n#bread"}, f.publisher.posts[0])

	st, err := f.store.Load(ctx, operator, "act_1")
	require.NoError(t, err)
	assert.Nil(t, st)
	require.Len(t, f.runs.entries, 1)
	assert.Equal(t, runs.KindOrganic, f.runs.entries[0].Kind)
}

func TestWithoutAutoExecuteIntentIsReturned(t *testing.T) {
	f := newFixture(Options{})
	f.intake.resp = publishIntent()

	reply := f.router.HandleTurn(context.Background(), intake.Turn{Identity: operator, Message: "yes"})
	assert.Equal(t, intake.IntentPublish, reply.Intent)
	require.NotNil(t, reply.Payload)
	assert.Empty(t, f.publisher.posts)
}

func TestExecuteRunsPendingPublishOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	f.intake.resp = publishIntent()

	reply := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "yes"})
	reply = f.router.Execute(ctx, operator, reply)
	assert.Contains(t, reply.Message, "Published")
	require.NotNil(t, reply.Result)

	again := f.router.Execute(ctx, operator, reply)
	assert.Equal(t, reply, again)
	assert.Len(t, f.publisher.posts, 1)

	plain := Reply{Question: "Which business?"}
	assert.Equal(t, plain, f.router.Execute(ctx, operator, plain))
	assert.Len(t, f.publisher.posts, 1)
}

func TestStatesListsEveryBusiness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	require.NoError(t, f.store.Save(ctx, operator, "act_1", &state.IntakeState{Stage: state.StagePreview}))

	all, err := f.router.States(ctx, operator)
	require.NoError(t, err)
	require.Contains(t, all, "act_1")
	assert.Equal(t, state.StagePreview, all["act_1"].Stage)
}

func TestPublishFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{AutoExecute: true})
	f.intake.resp = publishIntent()
	f.publisher.err = apperrors.New(apperrors.KindRemoteFatal, "organic.publish", "publishing failed", errors.New("media not ready"))
	require.NoError(t, f.store.Save(ctx, operator, "act_1", &state.IntakeState{Stage: state.StageCompleted}))

	reply := f.router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "yes"})
	assert.Equal(t, "publishing failed: media not ready", reply.Error)

	st, err := f.store.Load(ctx, operator, "act_1")
	require.NoError(t, err)
	assert.NotNil(t, st)
	assert.Error(t, f.runs.entries[0].Err)
}

func TestReplyText(t *testing.T) {
	assert.Equal(t, "Sorry, that didn't work: nope", Reply{Error: "nope"}.Text())
	assert.Equal(t, "Done\n\nNext?", Reply{Message: "Done", Question: "Next?"}.Text())
	assert.Equal(t, "Approved. Publishing your post now.", Reply{Intent: intake.IntentPublish, Payload: &intake.PublishPayload{}}.Text())
}

type tokenlessConns struct{}

func (tokenlessConns) Connection(context.Context, string) (*models.BusinessConnection, error) {
	conn := connection()
	conn.AccessToken = ""
	conn.Assets = nil
	return conn, nil
}

func TestSystemTokenFillsMissingCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{SystemToken: "system-token"})
	f.router.conns = tokenlessConns{}

	_, err := f.router.LaunchCampaign(ctx, operator, campaign.Intent{Objective: "TRAFFIC"})
	require.NoError(t, err)
	assert.Equal(t, "system-token", f.builder.accts[0].Token)

	_, err = f.router.PublishPost(ctx, operator, intake.PublishPayload{InstagramID: "ig1", ImageURL: "https://img.example/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "system-token", f.publisher.posts[0].Token)
}

func TestChatDraftThenPostWithRealIntake(t *testing.T) {
	ctx := context.Background()
	store := state.NewManager(state.NewMemoryStore())
	conns := fakeConns{connection()}
	machine := intake.NewMachine(store, conns, generation.NewMockText(), generation.NewMockImage(), zap.NewNop())
	router := NewRouter(machine, &fakeBuilder{}, &fakePublisher{}, conns, store, &fakeRuns{}, &fakeNotifier{}, Options{}, zap.NewNop())

	reply := router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "objective traffic"})
	require.Empty(t, reply.Error)
	assert.Contains(t, reply.Message, "objective TRAFFIC")

	reply = router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "budget 500 daily"})
	require.Empty(t, reply.Error)
	assert.Contains(t, reply.Message, "budget 500")

	reply = router.HandleTurn(ctx, intake.Turn{Identity: operator, Message: "create a post about fresh bread"})
	require.Empty(t, reply.Error)
	assert.Equal(t, state.StagePreview, reply.Stage)
	assert.NotEmpty(t, reply.Question)
	assert.NotEmpty(t, reply.ImageURL)

	st, err := store.Load(ctx, operator, "act_1")
	require.NoError(t, err)
	require.NotNil(t, st.CampaignState)
	assert.Equal(t, 500.0, st.CampaignState.Budget.Amount)
	assert.True(t, st.CampaignState.Launchable())
}
