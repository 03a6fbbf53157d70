// Package intake runs the turn-by-turn conversation that gathers what is
// needed to draft an organic post, from picking the business to the preview.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"adpilot/internal/apperrors"
	"adpilot/internal/business"
	"adpilot/internal/generation"
	"adpilot/internal/logging"
	"adpilot/internal/models"
	"adpilot/internal/state"
)

const (
	IntentPublish = "PUBLISH"

	CancelAck     = "Okay, I've cancelled that. Send \"create a post\" whenever you want to start again."
	completedNote = "That post is done. Send \"create a post\" to start a new one."

	minContextLength = 5
)

// Connections resolves the business connected to an operator identity.
type Connections interface {
	Connection(ctx context.Context, identity string) (*models.BusinessConnection, error)
}

type Turn struct {
	Identity string `json:"identity" binding:"required"`
	Message  string `json:"message"`
}

// PublishPayload is everything the organic publisher needs once the operator approves.
type PublishPayload struct {
	BusinessKey string `json:"businessKey"`
	PageID      string `json:"pageId"`
	InstagramID string `json:"instagramId"`
	Caption     string `json:"caption"`
	ImageURL    string `json:"imageUrl"`
}

// Response is one of a question, a publish intent or an error. Handled is
// false when the message did not belong to an intake conversation.
type Response struct {
	Handled  bool            `json:"-"`
	Question string          `json:"question,omitempty"`
	Message  string          `json:"message,omitempty"`
	Intent   string          `json:"intent,omitempty"`
	Payload  *PublishPayload `json:"payload,omitempty"`
	// ImageURL is the draft image shown with a preview question.
	ImageURL string      `json:"imageUrl,omitempty"`
	Error    string      `json:"error,omitempty"`
	Stage    state.Stage `json:"stage,omitempty"`
}

type Machine struct {
	store    *state.Manager
	conns    Connections
	captions generation.TextGenerator
	images   generation.ImageGenerator
	logger   *zap.Logger
}

func NewMachine(store *state.Manager, conns Connections, captions generation.TextGenerator, images generation.ImageGenerator, logger *zap.Logger) *Machine {
	return &Machine{
		store:    store,
		conns:    conns,
		captions: captions,
		images:   images,
		logger:   logging.OrNop(logger),
	}
}

// session is the working set for one turn.
type session struct {
	identity string
	key      string
	conn     *models.BusinessConnection
	st       *state.IntakeState
}

// outcome of a single step: a reply ends the turn, otherwise the next stage
// runs immediately with whatever input is left.
type outcome struct {
	reply    *Response
	consumed bool
}

// Handle processes one operator message.
func (m *Machine) Handle(ctx context.Context, turn Turn) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("intake panic", zap.String("identity", turn.Identity), zap.Any("panic", r))
			resp = Response{Handled: true, Error: "Something went wrong on my side. Please try again."}
		}
	}()

	trigger := IsTrigger(turn.Message)
	cancel := IsCancel(turn.Message)

	conn, err := m.conns.Connection(ctx, turn.Identity)
	if err != nil {
		if trigger {
			return m.fail(turn.Identity, "", err)
		}
		return Response{}
	}
	s := &session{identity: turn.Identity, key: conn.BusinessKey, conn: conn}

	s.st, err = m.store.Load(ctx, s.identity, s.key)
	if err != nil {
		return m.fail(s.identity, "", err)
	}

	// A document without a stage holds only a campaign draft, not an intake.
	active := s.st != nil && s.st.Stage != ""

	if cancel {
		if !active {
			return Response{}
		}
		if err := m.store.Clear(ctx, s.identity, s.key); err != nil {
			return m.fail(s.identity, s.st.Stage, err)
		}
		m.logger.Info("intake cancelled", zap.String("identity", s.identity), zap.String("stage", string(s.st.Stage)))
		return Response{Handled: true, Message: CancelAck}
	}

	msg := strings.TrimSpace(turn.Message)
	switch {
	case !active && !trigger:
		return Response{}
	case !active:
		next := &state.IntakeState{Stage: state.StageBusinessResolution}
		if s.st != nil {
			next.CampaignState = s.st.CampaignState
		}
		s.st = next
		msg = StripTrigger(msg)
		m.logger.Info("intake started", zap.String("identity", s.identity), zap.String("business", s.key))
	case s.st.Stage == state.StageCompleted:
		if err := m.store.Clear(ctx, s.identity, s.key); err != nil {
			return m.fail(s.identity, s.st.Stage, err)
		}
		return Response{Handled: true, Message: completedNote, Stage: state.StageCompleted}
	}

	return m.run(ctx, s, msg)
}

func (m *Machine) run(ctx context.Context, s *session, msg string) Response {
	for {
		from := s.st.Stage
		out, err := m.step(ctx, s, msg)
		if err != nil {
			return m.fail(s.identity, from, err)
		}
		if err := m.store.Save(ctx, s.identity, s.key, s.st); err != nil {
			return m.fail(s.identity, from, err)
		}
		if from != s.st.Stage {
			m.logger.Debug("intake stage", zap.String("identity", s.identity),
				zap.String("from", string(from)), zap.String("to", string(s.st.Stage)))
		}
		if out.reply != nil {
			out.reply.Handled = true
			out.reply.Stage = s.st.Stage
			return *out.reply
		}
		if out.consumed {
			msg = ""
		}
		if from == s.st.Stage {
			return m.fail(s.identity, from, fmt.Errorf("stage %s made no progress", from))
		}
	}
}

func (m *Machine) step(ctx context.Context, s *session, msg string) (outcome, error) {
	switch s.st.Stage {
	case state.StageBusinessResolution:
		return m.resolveBusiness(s, msg)
	case state.StageBusinessResolutionWaiting:
		return m.awaitBusiness(s, msg)
	case state.StageContextResolution:
		return m.resolveContext(s, msg)
	case state.StageAssetResolution:
		return m.resolveAssets(s)
	case state.StageContentGeneration:
		return m.generateContent(ctx, s)
	case state.StagePreview:
		return m.preview(s, msg)
	}
	return outcome{}, fmt.Errorf("unknown stage %q", s.st.Stage)
}

// advance moves the state forward. Only the preview revision moves back, and
// it does so explicitly.
func advance(st *state.IntakeState, to state.Stage) error {
	if to.Rank() < st.Stage.Rank() {
		return fmt.Errorf("stage cannot move from %s back to %s", st.Stage, to)
	}
	st.Stage = to
	return nil
}

func (m *Machine) resolveBusiness(s *session, msg string) (outcome, error) {
	eligible := business.Eligible(s.conn)
	switch len(eligible) {
	case 0:
		return outcome{}, apperrors.Configuration("intake.business",
			"no page with a linked Instagram business account is connected; link one and run a sync")
	case 1:
		selectBusiness(s.st, eligible[0])
		return outcome{}, advance(s.st, state.StageContextResolution)
	}

	candidates := candidatesFor(s.conn, eligible)
	s.st.Candidates = candidates
	absorbContext(s.st, msg)
	if err := advance(s.st, state.StageBusinessResolutionWaiting); err != nil {
		return outcome{}, err
	}
	return outcome{reply: &Response{Question: businessQuestion(candidates)}, consumed: true}, nil
}

func (m *Machine) awaitBusiness(s *session, msg string) (outcome, error) {
	if len(s.st.Candidates) == 0 {
		s.st.Candidates = candidatesFor(s.conn, business.Eligible(s.conn))
		if len(s.st.Candidates) == 0 {
			return outcome{}, apperrors.Configuration("intake.business", "the connected business no longer has an Instagram-linked page")
		}
	}
	pick, ok := matchCandidate(s.st.Candidates, msg)
	if !ok && IsAffirmative(msg) {
		pick, ok = s.st.Candidates[0], true
	}
	if !ok {
		return outcome{reply: &Response{Question: businessQuestion(s.st.Candidates)}, consumed: true}, nil
	}
	asset, _ := business.Asset(s.conn, pick.PageID)
	if asset.PageID == "" {
		asset = models.BusinessAsset{PageID: pick.PageID, Name: pick.Name, InstagramID: pick.InstagramID}
	}
	selectBusiness(s.st, asset)
	s.st.Candidates = nil
	return outcome{consumed: true}, advance(s.st, state.StageContextResolution)
}

func (m *Machine) resolveContext(s *session, msg string) (outcome, error) {
	absorbContext(s.st, msg)
	ctx := &s.st.Context
	if ctx.Website == "" && len(ctx.RawIntent) <= minContextLength {
		return outcome{reply: &Response{
			Question: fmt.Sprintf("What should the post for %s be about? Send a short description or your website link.", s.st.BusinessName),
		}, consumed: true}, nil
	}
	if ctx.Topic == "" {
		ctx.Topic = ctx.RawIntent
	}
	if ctx.Topic == "" {
		ctx.Topic = "what's new at " + s.st.BusinessName
	}
	return outcome{consumed: true}, advance(s.st, state.StageAssetResolution)
}

func (m *Machine) resolveAssets(s *session) (outcome, error) {
	st := s.st
	asset, _ := business.Asset(s.conn, st.BusinessID)

	switch {
	case st.Assets.LogoURL != "":
		st.Assets.Source = "existing"
	case asset.LogoURL != "":
		st.Assets.LogoURL = asset.LogoURL
		st.Assets.Source = "business"
	default:
		st.Assets.LogoText = st.BusinessName
		st.Assets.Source = "text"
	}

	st.Assets.WebsiteURL = firstNonEmpty(st.Context.Website, st.Assets.WebsiteURL, asset.Website, s.conn.WebsiteURL)
	st.Assets.Phone = firstNonEmpty(st.Assets.Phone, asset.Phone, s.conn.Phone)
	st.Assets.Footer = footer(st.Assets)
	return outcome{}, advance(st, state.StageContentGeneration)
}

func (m *Machine) generateContent(ctx context.Context, s *session) (outcome, error) {
	st := s.st
	brief := generation.Brief{
		BusinessName: st.BusinessName,
		Topic:        st.Context.Topic,
		Website:      st.Assets.WebsiteURL,
		Service:      st.Context.Service,
		Footer:       st.Assets.Footer,
		Feedback:     st.Context.Feedback,
	}

	var (
		caption  generation.Caption
		imageURL string
		prompt   = generation.ImagePrompt(brief)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		caption = m.caption(gctx, s.identity, brief)
		return nil
	})
	g.Go(func() error {
		if m.images == nil {
			return apperrors.GenerationFailure("intake.content", errors.New("no image backend configured"))
		}
		url, err := m.images.GenerateImage(gctx, prompt)
		if err != nil {
			return apperrors.GenerationFailure("intake.content", err)
		}
		if strings.TrimSpace(url) == "" {
			return apperrors.GenerationFailure("intake.content", errors.New("empty image url"))
		}
		imageURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		return outcome{}, err
	}

	st.Content = state.Content{
		Caption:     caption.Caption,
		Hashtags:    caption.Hashtags,
		ImageURL:    imageURL,
		ImagePrompt: prompt,
	}
	st.Context.Feedback = ""
	if err := m.store.ResetCreative(ctx, s.identity, s.key); err != nil {
		return outcome{}, err
	}
	st.CampaignState = &state.CampaignState{
		Objective: state.OrganicPostObjective,
		Stage:     state.CampaignReadyToLaunch,
		Creative: &state.Creative{
			ImageURL:       imageURL,
			PrimaryText:    caption.Caption,
			DestinationURL: st.Assets.WebsiteURL,
			Hashtags:       caption.Hashtags,
		},
	}
	if err := advance(st, state.StagePreview); err != nil {
		return outcome{}, err
	}
	return outcome{reply: &Response{Question: renderPreview(st), ImageURL: st.Content.ImageURL}}, nil
}

// caption never fails: a backend or parse error degrades to the fallback.
func (m *Machine) caption(ctx context.Context, identity string, brief generation.Brief) generation.Caption {
	if m.captions == nil {
		return generation.FallbackCaption(brief)
	}
	text, err := m.captions.Generate(ctx, generation.CaptionPrompt(brief))
	if err == nil {
		var c generation.Caption
		if c, err = generation.ExtractCaption(text); err == nil {
			return c
		}
	}
	m.logger.Warn("caption generation degraded", zap.String("identity", identity), zap.Error(err))
	return generation.FallbackCaption(brief)
}

func (m *Machine) preview(s *session, msg string) (outcome, error) {
	st := s.st
	if msg == "" {
		return outcome{reply: &Response{Question: renderPreview(st), ImageURL: st.Content.ImageURL}}, nil
	}
	if IsAffirmative(msg) {
		if err := advance(st, state.StageCompleted); err != nil {
			return outcome{}, err
		}
		return outcome{consumed: true, reply: &Response{
			Intent: IntentPublish,
			Payload: &PublishPayload{
				BusinessKey: s.key,
				PageID:      st.BusinessID,
				InstagramID: st.InstagramID,
				Caption:     st.Content.FinalCaption(),
				ImageURL:    st.Content.ImageURL,
			},
		}}, nil
	}
	// revision: the one permitted backward move
	st.Context.Feedback = msg
	st.Stage = state.StageContentGeneration
	return outcome{consumed: true}, nil
}

func (m *Machine) fail(identity string, stage state.Stage, err error) Response {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		m.logger.Error("intake step failed", zap.String("identity", identity), zap.String("stage", string(stage)), zap.Error(err))
	} else {
		m.logger.Warn("intake step rejected", zap.String("identity", identity), zap.String("stage", string(stage)),
			zap.String("kind", string(kind)), zap.Error(err))
	}
	return Response{Handled: true, Error: OperatorMessage(err), Stage: stage}
}

// OperatorMessage is the text shown to the operator for err. Internal
// failures are not echoed verbatim.
func OperatorMessage(err error) string {
	var e *apperrors.Error
	if !errors.As(err, &e) {
		return "Something went wrong on my side. Please try again."
	}
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	return msg
}

func selectBusiness(st *state.IntakeState, a models.BusinessAsset) {
	st.BusinessID = a.PageID
	st.BusinessName = a.Name
	st.InstagramID = a.InstagramID
}

// absorbContext folds msg into the running context: the URL (if any) becomes
// the website and the remaining text is appended to the raw intent.
func absorbContext(st *state.IntakeState, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	fields := ExtractFields(msg)
	if fields.Website != nil && st.Context.Website == "" {
		st.Context.Website = *fields.Website
	}
	if fields.Phone != nil && st.Assets.Phone == "" {
		st.Assets.Phone = *fields.Phone
	}
	if text := StripURLs(msg); text != "" {
		st.Context.RawIntent = strings.TrimSpace(st.Context.RawIntent + " " + text)
	}
}

// candidatesFor lists eligible assets with the connection's default page first.
func candidatesFor(conn *models.BusinessConnection, eligible []models.BusinessAsset) []state.Candidate {
	out := make([]state.Candidate, 0, len(eligible))
	for _, a := range eligible {
		c := state.Candidate{PageID: a.PageID, Name: a.Name, InstagramID: a.InstagramID}
		if a.PageID == conn.PageID {
			out = append([]state.Candidate{c}, out...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchCandidate(cands []state.Candidate, msg string) (state.Candidate, bool) {
	s := normalize(msg)
	if s == "" {
		return state.Candidate{}, false
	}
	for _, c := range cands {
		if strings.EqualFold(c.Name, s) || c.PageID == s {
			return c, true
		}
	}
	for _, c := range cands {
		name := strings.ToLower(c.Name)
		if name == "" {
			continue
		}
		if strings.Contains(s, name) || (len(s) >= 3 && strings.Contains(name, s)) {
			return c, true
		}
	}
	return state.Candidate{}, false
}

func businessQuestion(cands []state.Candidate) string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Name
	}
	return fmt.Sprintf("Which business is this post for: %s? Reply with the name, or \"yes\" for %s.",
		strings.Join(names, ", "), cands[0].Name)
}

func renderPreview(st *state.IntakeState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the draft for %s:\n\n", st.BusinessName)
	b.WriteString(st.Content.FinalCaption())
	fmt.Fprintf(&b, "\n\nImage: %s\n\n", st.Content.ImageURL)
	b.WriteString("Reply \"yes\" to publish, or tell me what to change.")
	return b.String()
}

func footer(a state.Assets) string {
	var parts []string
	if a.Phone != "" {
		parts = append(parts, "Call "+a.Phone)
	}
	if a.WebsiteURL != "" {
		parts = append(parts, a.WebsiteURL)
	}
	return strings.Join(parts, " | ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
