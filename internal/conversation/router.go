// Package conversation routes operator messages to the intake flow, campaign
// draft updates and launches, and executes approved posts.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"adpilot/internal/apperrors"
	"adpilot/internal/business"
	"adpilot/internal/campaign"
	"adpilot/internal/intake"
	"adpilot/internal/logging"
	"adpilot/internal/models"
	"adpilot/internal/objective"
	"adpilot/internal/organic"
	"adpilot/internal/runs"
	"adpilot/internal/state"
	"adpilot/internal/ws"
)

type Intake interface {
	Handle(ctx context.Context, turn intake.Turn) intake.Response
}

type Builder interface {
	Build(ctx context.Context, acct campaign.Account, in campaign.Intent) (*campaign.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, post organic.Post) (*organic.Result, error)
}

type Connections interface {
	Connection(ctx context.Context, identity string) (*models.BusinessConnection, error)
}

type RunRecorder interface {
	Record(ctx context.Context, e runs.Entry) (*models.CampaignRun, error)
}

// Notifier receives progress events for dashboards.
type Notifier interface {
	Publish(eventType, identity string, data any)
}

type Options struct {
	// AutoExecute publishes an approved post in the same turn instead of
	// returning the publish intent to the caller.
	AutoExecute bool
	// SystemToken is used for connections linked without a user token.
	SystemToken string
}

type Router struct {
	intake    Intake
	builder   Builder
	publisher Publisher
	conns     Connections
	store     *state.Manager
	runs      RunRecorder
	notify    Notifier
	opts      Options
	logger    *zap.Logger
}

func NewRouter(in Intake, b Builder, p Publisher, conns Connections, store *state.Manager, rec RunRecorder, notify Notifier, opts Options, logger *zap.Logger) *Router {
	return &Router{
		intake:    in,
		builder:   b,
		publisher: p,
		conns:     conns,
		store:     store,
		runs:      rec,
		notify:    notify,
		opts:      opts,
		logger:    logging.OrNop(logger),
	}
}

var launchPhrases = []string{"launch campaign", "launch the campaign", "launch ads", "launch my ads", "run the campaign", "go live"}

func isLaunch(msg string) bool {
	s := strings.ToLower(msg)
	for _, p := range launchPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

const helpText = "Send \"create a post\" to draft an Instagram post, send campaign details (budget, objective, website) to build a campaign draft, or \"launch campaign\" to launch it."

// HandleTurn answers one operator message. Failures are reported inside the
// reply; a turn never returns a transport error.
func (r *Router) HandleTurn(ctx context.Context, turn intake.Turn) Reply {
	msg := strings.TrimSpace(turn.Message)

	if isLaunch(msg) {
		var hint string
		if f := intake.ExtractFields(msg); f.ObjectiveHint != nil {
			hint = *f.ObjectiveHint
		}
		res, err := r.LaunchDraft(ctx, turn.Identity, hint)
		if err != nil {
			reply := Reply{Error: intake.OperatorMessage(err)}
			if res != nil {
				reply.Result = res
			}
			return reply
		}
		return Reply{Message: fmt.Sprintf("Campaign %s is live with %d ad(s), objective %s.", res.CampaignID, len(res.AdIDs), res.EffectiveObjective), Result: res}
	}

	resp := r.intake.Handle(ctx, turn)
	if resp.Handled {
		if resp.Stage != "" {
			r.publish(ws.EventStageUpdate, turn.Identity, map[string]any{"stage": resp.Stage})
		}
		reply := fromIntake(resp)
		if r.opts.AutoExecute {
			reply = r.Execute(ctx, turn.Identity, reply)
		}
		return reply
	}

	if update := draftFromFields(intake.ExtractFields(msg)); update != nil {
		merged, err := r.UpdateDraft(ctx, turn.Identity, update)
		if err != nil {
			return Reply{Error: intake.OperatorMessage(err)}
		}
		return Reply{Message: describeDraft(merged)}
	}
	return Reply{Message: helpText}
}

// Execute carries out a pending publish intent in reply. Replies without one,
// or already executed, are returned unchanged.
func (r *Router) Execute(ctx context.Context, identity string, reply Reply) Reply {
	if reply.Intent != intake.IntentPublish || reply.Payload == nil || reply.Result != nil || reply.Error != "" {
		return reply
	}
	res, err := r.PublishPost(ctx, identity, *reply.Payload)
	if res != nil {
		reply.Result = res
	}
	if err != nil {
		reply.Error = intake.OperatorMessage(err)
	} else {
		reply.Message = "Published! Your post is live on Instagram."
	}
	return reply
}

// States returns the identity's stored intake documents keyed by business.
func (r *Router) States(ctx context.Context, identity string) (map[string]*state.IntakeState, error) {
	return r.store.LoadAll(ctx, identity)
}

// PublishPost executes an approved organic post and clears the finished intake.
func (r *Router) PublishPost(ctx context.Context, identity string, p intake.PublishPayload) (*organic.Result, error) {
	conn, err := r.conns.Connection(ctx, identity)
	if err != nil {
		return nil, err
	}
	token := conn.AccessToken
	if asset, ok := business.Asset(conn, p.PageID); ok && token == "" {
		token = asset.PageToken
	}
	if token == "" {
		token = r.opts.SystemToken
	}
	igID := p.InstagramID
	if igID == "" {
		igID = conn.InstagramActorID
	}

	res, err := r.publisher.Publish(ctx, organic.Post{InstagramID: igID, Token: token, ImageURL: p.ImageURL, Caption: p.Caption})
	r.record(ctx, runs.Entry{
		Identity:           identity,
		BusinessKey:        firstNonEmpty(p.BusinessKey, conn.BusinessKey),
		Kind:               runs.KindOrganic,
		RequestedObjective: state.OrganicPostObjective,
		EffectiveObjective: state.OrganicPostObjective,
		Created:            res,
		Err:                err,
	})
	r.publish(ws.EventRunResult, identity, map[string]any{"kind": runs.KindOrganic, "result": res, "error": errText(err)})
	if err != nil {
		return res, err
	}
	if err := r.store.Clear(ctx, identity, firstNonEmpty(p.BusinessKey, conn.BusinessKey)); err != nil {
		r.logger.Warn("clear finished intake", zap.String("identity", identity), zap.Error(err))
	}
	return res, nil
}

// LaunchCampaign provisions a fully specified campaign for identity.
func (r *Router) LaunchCampaign(ctx context.Context, identity string, in campaign.Intent) (*campaign.Result, error) {
	conn, err := r.conns.Connection(ctx, identity)
	if err != nil {
		return nil, err
	}
	res, err := r.builder.Build(ctx, accountFor(conn, r.opts.SystemToken), in)
	entry := runs.Entry{Identity: identity, BusinessKey: conn.BusinessKey, Kind: runs.KindCampaign, Created: res, Err: err}
	if res != nil {
		entry.RequestedObjective = res.RequestedObjective
		entry.EffectiveObjective = res.EffectiveObjective
	}
	r.record(ctx, entry)
	r.publish(ws.EventRunResult, identity, map[string]any{"kind": runs.KindCampaign, "result": res, "error": errText(err)})
	return res, err
}

// LaunchDraft launches the stored campaign draft. Without an objective hint
// the organic-post draft is preferred, then one with a plan, then any.
func (r *Router) LaunchDraft(ctx context.Context, identity, objectiveHint string) (*campaign.Result, error) {
	const op = "conversation.launch"
	pursuing := state.OrganicPostObjective
	if objectiveHint != "" {
		pursuing = objective.Normalize(objectiveHint).String()
	}
	found, err := r.store.FindCampaign(ctx, identity, pursuing)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apperrors.Validation(op, "no campaign draft found; create a post or send the campaign details first")
	}
	draft := found.Campaign
	switch {
	case draft.Stage == state.CampaignCompleted:
		return nil, apperrors.Validation(op, "this campaign draft was already launched")
	case !draft.Launchable():
		return nil, apperrors.Validation(op, "the campaign draft needs an image and primary text")
	case !draft.HasBudget():
		return nil, apperrors.Validation(op, "the campaign draft needs a budget")
	}

	res, err := r.LaunchCampaign(ctx, identity, intentFromDraft(draft, objectiveHint))
	if err != nil {
		return res, err
	}
	if err := r.store.ClearCampaign(ctx, identity, found.BusinessKey); err != nil {
		r.logger.Warn("clear launched campaign draft", zap.String("identity", identity), zap.Error(err))
		// keep it from launching twice
		if _, err := r.store.UpdateCampaign(ctx, identity, found.BusinessKey, &state.CampaignState{Stage: state.CampaignCompleted}); err != nil {
			r.logger.Error("mark campaign draft completed", zap.String("identity", identity), zap.Error(err))
		}
	}
	return res, nil
}

// UpdateDraft merges update into the campaign draft of the identity's
// connected business.
func (r *Router) UpdateDraft(ctx context.Context, identity string, update *state.CampaignState) (*state.CampaignState, error) {
	conn, err := r.conns.Connection(ctx, identity)
	if err != nil {
		return nil, err
	}
	// a launched draft is never merged into; the update starts a new one
	st, err := r.store.Load(ctx, identity, conn.BusinessKey)
	if err != nil {
		return nil, err
	}
	if st != nil && st.CampaignState != nil && st.CampaignState.Stage == state.CampaignCompleted {
		if err := r.store.ClearCampaign(ctx, identity, conn.BusinessKey); err != nil {
			return nil, err
		}
	}
	merged, err := r.store.UpdateCampaign(ctx, identity, conn.BusinessKey, update)
	if err != nil {
		return nil, err
	}
	if merged.Stage == "" && merged.Launchable() {
		merged, err = r.store.UpdateCampaign(ctx, identity, conn.BusinessKey, &state.CampaignState{Stage: state.CampaignReadyToLaunch})
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (r *Router) record(ctx context.Context, e runs.Entry) {
	if r.runs == nil {
		return
	}
	if _, err := r.runs.Record(ctx, e); err != nil {
		r.logger.Error("record run", zap.String("identity", e.Identity), zap.Error(err))
	}
}

func (r *Router) publish(eventType, identity string, data any) {
	if r.notify != nil {
		r.notify.Publish(eventType, identity, data)
	}
}

func accountFor(conn *models.BusinessConnection, systemToken string) campaign.Account {
	return campaign.Account{
		AdAccountID:      conn.AdAccountID,
		PageID:           conn.PageID,
		InstagramActorID: conn.InstagramActorID,
		PixelID:          conn.PixelID,
		AppID:            conn.AppID,
		AppStoreURL:      conn.AppStoreURL,
		Token:            firstNonEmpty(conn.AccessToken, systemToken),
		WebsiteURL:       conn.WebsiteURL,
		Phone:            conn.Phone,
	}
}

func intentFromDraft(d *state.CampaignState, objectiveHint string) campaign.Intent {
	obj := firstNonEmpty(objectiveHint, d.Objective)
	if strings.EqualFold(obj, state.OrganicPostObjective) {
		obj = ""
	}
	in := campaign.Intent{
		Name:               d.Name,
		Objective:          obj,
		ConversionLocation: d.ConversionLocation,
		Budget:             *d.Budget,
	}
	if d.Targeting != nil {
		in.Targeting = *d.Targeting
	}
	in.DestinationURL = d.Creative.DestinationURL
	in.AdSets = []campaign.AdSetSpec{{
		Creative: campaign.CreativeSpec{
			ImageURL:       d.Creative.ImageURL,
			PrimaryText:    d.Creative.PrimaryText,
			Headline:       d.Creative.Headline,
			DestinationURL: d.Creative.DestinationURL,
			Hashtags:       d.Creative.Hashtags,
		},
	}}
	return in
}

// draftFromFields turns scraped fields into a campaign state update, or nil
// when nothing campaign-related was found.
func draftFromFields(f intake.Fields) *state.CampaignState {
	var u state.CampaignState
	found := false
	if f.CampaignName != nil {
		u.Name, found = *f.CampaignName, true
	}
	if f.ObjectiveHint != nil {
		u.Objective, found = objective.Normalize(*f.ObjectiveHint).String(), true
	}
	if f.Budget != nil {
		u.Budget, found = &state.Budget{Amount: f.Budget.Amount, Currency: f.Budget.Currency, Type: f.Budget.Type}, true
	}
	if f.Headline != nil || f.Website != nil {
		u.Creative = &state.Creative{}
		if f.Headline != nil {
			u.Creative.Headline = *f.Headline
		}
		if f.Website != nil {
			u.Creative.DestinationURL = *f.Website
		}
		found = true
	}
	if !found {
		return nil
	}
	return &u
}

func describeDraft(c *state.CampaignState) string {
	var parts []string
	if c.Name != "" {
		parts = append(parts, "name "+c.Name)
	}
	if c.Objective != "" {
		parts = append(parts, "objective "+c.Objective)
	}
	if c.HasBudget() {
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("budget %g %s %s", c.Budget.Amount, c.Budget.Currency, strings.ToLower(c.Budget.Type))))
	}
	if c.Creative != nil && c.Creative.DestinationURL != "" {
		parts = append(parts, "website "+c.Creative.DestinationURL)
	}
	if c.Creative != nil && c.Creative.Headline != "" {
		parts = append(parts, "headline "+c.Creative.Headline)
	}
	msg := "Campaign draft updated: " + strings.Join(parts, ", ") + "."
	if c.Launchable() && c.HasBudget() {
		msg += " Send \"launch campaign\" when you're ready."
	}
	return msg
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
