// Package campaign provisions a paid campaign (campaign, ad sets, creatives,
// ads) and falls back across objectives and placement strategies when the
// platform rejects a combination.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"adpilot/internal/apperrors"
	"adpilot/internal/logging"
	"adpilot/internal/meta"
	"adpilot/internal/objective"
	"adpilot/internal/state"
)

const defaultLifetime = 7 * 24 * time.Hour

// AdsAPI is the slice of the marketing API the builder calls.
type AdsAPI interface {
	GetAdAccount(ctx context.Context, token, adAccountID string) (*meta.AdAccount, error)
	CreateCampaign(ctx context.Context, token, adAccountID string, params meta.Params) (string, error)
	CreateAdSet(ctx context.Context, token, adAccountID string, params meta.Params) (string, error)
	CreateAdCreative(ctx context.Context, token, adAccountID string, params meta.Params) (string, error)
	CreateAd(ctx context.Context, token, adAccountID string, params meta.Params) (string, error)
}

// Account is the resolved business connection a run acts on.
type Account struct {
	AdAccountID      string
	PageID           string
	InstagramActorID string
	PixelID          string
	AppID            string
	AppStoreURL      string
	Token            string
	WebsiteURL       string
	Phone            string
}

type CreativeSpec struct {
	Name           string   `json:"name,omitempty"`
	ImageURL       string   `json:"imageUrl"`
	PrimaryText    string   `json:"primaryText"`
	Headline       string   `json:"headline,omitempty"`
	DestinationURL string   `json:"destinationUrl,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Hashtags       []string `json:"hashtags,omitempty"`
}

func (c CreativeSpec) message() string {
	tags := state.FormatHashtags(c.Hashtags)
	if tags == "" {
		return c.PrimaryText
	}
	return strings.TrimSpace(c.PrimaryText) + "\n\n" + tags
}

// AdSetSpec describes one ad set and its creative. Zero-valued targeting and
// budget inherit from the intent.
type AdSetSpec struct {
	Name      string           `json:"name,omitempty"`
	Targeting *state.Targeting `json:"targeting,omitempty"`
	Budget    *state.Budget    `json:"budget,omitempty"`
	Creative  CreativeSpec     `json:"creative"`
}

func (s AdSetSpec) name(in Intent) string {
	return firstNonEmpty(s.Name, in.Name)
}

func (s AdSetSpec) targeting(in Intent) state.Targeting {
	if s.Targeting != nil {
		return *s.Targeting
	}
	return in.Targeting
}

func (s AdSetSpec) budget(in Intent) state.Budget {
	if s.Budget != nil && s.Budget.Amount > 0 {
		return *s.Budget
	}
	return in.Budget
}

// Intent is a fully resolved campaign request.
type Intent struct {
	Name               string          `json:"name"`
	Objective          string          `json:"objective"`
	ConversionLocation string          `json:"conversionLocation,omitempty"`
	Budget             state.Budget    `json:"budget"`
	Targeting          state.Targeting `json:"targeting"`
	DestinationURL     string          `json:"destinationUrl,omitempty"`
	Phone              string          `json:"phone,omitempty"`
	AdSets             []AdSetSpec     `json:"adSets"`
	EndTime            time.Time       `json:"endTime,omitempty"`
	Activate           bool            `json:"activate,omitempty"`
}

func (in Intent) status() string {
	if in.Activate {
		return "ACTIVE"
	}
	return "PAUSED"
}

// Attempt records a rejected objective or strategy.
type Attempt struct {
	Step      string `json:"step"`
	Objective string `json:"objective"`
	Strategy  string `json:"strategy,omitempty"`
	Error     string `json:"error"`
}

// Result lists everything created in one run, including partial progress
// when the run fails.
type Result struct {
	OK                 bool      `json:"ok"`
	RequestedObjective string    `json:"requestedObjective"`
	EffectiveObjective string    `json:"effectiveObjective,omitempty"`
	CampaignID         string    `json:"campaignId,omitempty"`
	AdSetIDs           []string  `json:"adSetIds,omitempty"`
	CreativeIDs        []string  `json:"creativeIds,omitempty"`
	AdIDs              []string  `json:"adIds,omitempty"`
	Attempts           []Attempt `json:"attempts,omitempty"`
	Error              string    `json:"error,omitempty"`
}

type Options struct {
	CountryCode   string // phone country code for bare numbers, e.g. "91"
	TargetCountry string // geo default when targeting names no country
}

type Builder struct {
	api           AdsAPI
	logger        *zap.Logger
	countryCode   string
	targetCountry string
	now           func() time.Time

	// Strategies yields the creative fallback order; DefaultStrategies unless replaced.
	Strategies func(objective.Objective) []Strategy
}

func NewBuilder(api AdsAPI, logger *zap.Logger, opts Options) *Builder {
	if opts.CountryCode == "" {
		opts.CountryCode = "91"
	}
	if opts.TargetCountry == "" {
		opts.TargetCountry = "IN"
	}
	return &Builder{
		api:           api,
		logger:        logging.OrNop(logger),
		countryCode:   opts.CountryCode,
		targetCountry: opts.TargetCountry,
		now:           time.Now,
		Strategies:    DefaultStrategies,
	}
}

// run is the per-execution record of created resources.
type run struct {
	acct    Account
	in      Intent
	res     *Result
	adSets  map[string]string // reuse key -> ad set id
	logger  *zap.Logger
	objName objective.Objective
}

// Build provisions the campaign. The returned Result is non-nil whenever any
// remote call was made, so partial progress can be reported next to the error.
func (b *Builder) Build(ctx context.Context, acct Account, in Intent) (*Result, error) {
	const op = "campaign.build"
	acct.AdAccountID = strings.TrimPrefix(strings.TrimSpace(acct.AdAccountID), "act_")

	requested := objective.Normalize(in.Objective)
	res := &Result{RequestedObjective: requested.String()}

	if acct.Token == "" {
		return res, apperrors.Configuration(op, "no access credential for the connected business")
	}
	if acct.AdAccountID == "" {
		return res, apperrors.Configuration(op, "no ad account connected")
	}
	if len(in.AdSets) == 0 {
		return res, apperrors.Validation(op, "at least one ad set with a creative is required")
	}
	if in.Name == "" {
		in.Name = fmt.Sprintf("%s %s", requested, b.now().UTC().Format("2006-01-02 15:04"))
	}
	if err := b.ready(requested, in, acct); err != nil {
		return res, err
	}

	if _, err := b.api.GetAdAccount(ctx, acct.Token, acct.AdAccountID); err != nil {
		return res, apperrors.Authorization(op, err)
	}

	r := &run{acct: acct, in: in, res: res, adSets: map[string]string{}}
	effective, err := b.createCampaign(ctx, r, requested)
	if err != nil {
		return b.finish(r, err)
	}
	r.objName = effective
	r.logger = b.logger.With(zap.String("campaign_id", res.CampaignID), zap.String("objective", effective.String()))

	plan, err := planFor(effective, in.ConversionLocation, acct)
	if err != nil {
		return b.finish(r, err)
	}
	for i, spec := range in.AdSets {
		if err := b.provisionAdSet(ctx, r, plan, i, spec); err != nil {
			return b.finish(r, err)
		}
	}
	return b.finish(r, nil)
}

// ready checks everything an objective needs that can be known without a
// remote call.
func (b *Builder) ready(obj objective.Objective, in Intent, acct Account) error {
	plan, err := planFor(obj, in.ConversionLocation, acct)
	if err != nil {
		return err
	}
	for _, spec := range in.AdSets {
		if strings.TrimSpace(spec.Creative.ImageURL) == "" {
			return apperrors.Validation("campaign.creative", "every ad needs an image url")
		}
		if spec.budget(in).Amount <= 0 {
			return apperrors.Validation("campaign.budget", "a positive budget is required")
		}
		if _, _, err := b.creativeFor(plan, Strategy{}, obj, spec, in, acct); err != nil {
			return err
		}
	}
	return nil
}

// createCampaign walks the objective fallback chain. Candidates whose local
// requirements cannot be met are skipped without a remote call.
func (b *Builder) createCampaign(ctx context.Context, r *run, requested objective.Objective) (objective.Objective, error) {
	const op = "campaign.create"
	var lastErr error
	for _, cand := range objective.FallbackChain(requested) {
		if cand != requested {
			if err := b.ready(cand, r.in, r.acct); err != nil {
				b.logger.Debug("objective fallback skipped", zap.String("objective", cand.String()), zap.Error(err))
				continue
			}
		}
		id, err := b.api.CreateCampaign(ctx, r.acct.Token, r.acct.AdAccountID, campaignParams(r.in, cand))
		if err == nil {
			r.res.CampaignID = id
			r.res.EffectiveObjective = cand.String()
			if cand != requested {
				b.logger.Info("campaign created with fallback objective",
					zap.String("requested", requested.String()), zap.String("effective", cand.String()))
			}
			return cand, nil
		}
		r.res.Attempts = append(r.res.Attempts, Attempt{Step: "campaign", Objective: cand.String(), Error: err.Error()})
		if Classify(err) == Fatal {
			return "", apperrors.RemoteFatal(op, err)
		}
		b.logger.Warn("campaign objective rejected", zap.String("objective", cand.String()), zap.Error(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no objective candidate could be attempted")
	}
	return "", apperrors.RemoteFatal(op, lastErr)
}

func (b *Builder) provisionAdSet(ctx context.Context, r *run, plan adSetPlan, idx int, spec AdSetSpec) error {
	const op = "campaign.adset"
	var failures []error

	for _, st := range b.Strategies(r.objName) {
		if st.UseActor && r.acct.InstagramActorID == "" {
			continue
		}
		adSetID, err := b.adSetFor(ctx, r, plan, spec, st)
		if err != nil {
			r.res.Attempts = append(r.res.Attempts, Attempt{Step: "adset", Objective: r.objName.String(), Strategy: st.Name, Error: err.Error()})
			if Classify(err) == Fatal {
				return apperrors.RemoteFatal(op, err)
			}
			failures = append(failures, fmt.Errorf("%s: %w", st.Name, err))
			continue
		}

		style, dest, err := b.creativeFor(plan, st, r.objName, spec, r.in, r.acct)
		if err != nil {
			return err
		}
		name := firstNonEmpty(spec.Creative.Name, fmt.Sprintf("%s creative %d", spec.name(r.in), idx+1))
		creativeID, err := b.api.CreateAdCreative(ctx, r.acct.Token, r.acct.AdAccountID,
			creativeParams(name, style, plan, spec.Creative, dest, r.acct, st))
		if err != nil {
			r.res.Attempts = append(r.res.Attempts, Attempt{Step: "creative", Objective: r.objName.String(), Strategy: st.Name, Error: err.Error()})
			if Classify(err) == Fatal {
				return apperrors.RemoteFatal("campaign.creative", err)
			}
			r.logger.Warn("creative strategy rejected", zap.String("strategy", st.Name), zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", st.Name, err))
			continue
		}
		r.res.CreativeIDs = append(r.res.CreativeIDs, creativeID)

		adID, err := b.api.CreateAd(ctx, r.acct.Token, r.acct.AdAccountID, meta.Params{
			"name":     fmt.Sprintf("%s ad %d", spec.name(r.in), idx+1),
			"adset_id": adSetID,
			"creative": meta.Params{"creative_id": creativeID},
			"status":   r.in.status(),
		})
		if err != nil {
			return apperrors.RemoteFatal("campaign.ad", err)
		}
		r.res.AdIDs = append(r.res.AdIDs, adID)
		r.logger.Info("ad created", zap.String("strategy", st.Name), zap.String("adset_id", adSetID), zap.String("ad_id", adID))
		return nil
	}

	if len(failures) == 0 {
		return apperrors.Configuration(op, "no creative strategy applies to %s", r.objName)
	}
	return apperrors.RemoteFatal(op, errors.Join(failures...))
}

// adSetFor returns the ad set for a strategy's placement, creating it only if
// this run has not created one with the same signature for the same targeting
// and budget.
func (b *Builder) adSetFor(ctx context.Context, r *run, plan adSetPlan, spec AdSetSpec, st Strategy) (string, error) {
	key := reuseKey(r.in, spec, st.Placement)
	if id, ok := r.adSets[key]; ok {
		r.logger.Debug("ad set reused", zap.String("strategy", st.Name), zap.String("adset_id", id))
		return id, nil
	}
	id, err := b.api.CreateAdSet(ctx, r.acct.Token, r.acct.AdAccountID, b.adSetParams(r.in, spec, r.res.CampaignID, plan, st))
	if err != nil {
		return "", err
	}
	r.adSets[key] = id
	r.res.AdSetIDs = append(r.res.AdSetIDs, id)
	return id, nil
}

func reuseKey(in Intent, spec AdSetSpec, pl Placement) string {
	return fmt.Sprintf("%s|%+v|%+v", pl.Signature(), spec.targeting(in), spec.budget(in))
}

func (b *Builder) finish(r *run, err error) (*Result, error) {
	if err != nil {
		r.res.Error = err.Error()
		b.logger.Error("campaign build failed",
			zap.String("campaign_id", r.res.CampaignID),
			zap.Strings("adset_ids", r.res.AdSetIDs),
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err))
		return r.res, err
	}
	r.res.OK = true
	b.logger.Info("campaign build complete",
		zap.String("campaign_id", r.res.CampaignID),
		zap.String("effective_objective", r.res.EffectiveObjective),
		zap.Int("ads", len(r.res.AdIDs)))
	return r.res, nil
}
