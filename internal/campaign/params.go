package campaign

import (
	"fmt"
	"math"
	"strings"
	"time"

	"adpilot/internal/apperrors"
	"adpilot/internal/meta"
	"adpilot/internal/objective"
	"adpilot/internal/state"
)

// Conversion locations accepted as a hint next to the objective.
const (
	LocationWebsite  = "WEBSITE"
	LocationCalls    = "CALLS"
	LocationMessages = "MESSAGES"
	LocationLeadForm = "INSTANT_FORMS"
	LocationApp      = "APP"
)

type creativeStyle string

const (
	styleLink  creativeStyle = "link"
	styleCall  creativeStyle = "call"
	stylePhoto creativeStyle = "photo"
)

// adSetPlan is what an effective objective needs from the ad set and creative.
type adSetPlan struct {
	OptimizationGoal string
	BillingEvent     string
	DestinationType  string
	PromotedObject   meta.Params
	Style            creativeStyle
	CallToAction     string
	LinkOptional     bool // fall back to a photo creative when no url resolves
}

// planFor maps an objective and conversion location to ad set parameters.
// Every objective yields a plan or a configuration error.
func planFor(obj objective.Objective, location string, acct Account) (adSetPlan, error) {
	const op = "campaign.plan"
	location = strings.ToUpper(strings.TrimSpace(location))

	requirePage := func() error {
		if acct.PageID == "" {
			return apperrors.Configuration(op, "%s with %s needs a connected page id", obj, strings.ToLower(location))
		}
		return nil
	}
	calls := func() (adSetPlan, error) {
		if err := requirePage(); err != nil {
			return adSetPlan{}, err
		}
		return adSetPlan{
			OptimizationGoal: "QUALITY_CALL",
			BillingEvent:     "IMPRESSIONS",
			DestinationType:  "PHONE_CALL",
			PromotedObject:   meta.Params{"page_id": acct.PageID},
			Style:            styleCall,
			CallToAction:     "CALL_NOW",
		}, nil
	}

	switch obj {
	case objective.Traffic:
		if location == LocationCalls {
			return calls()
		}
		return adSetPlan{
			OptimizationGoal: "LINK_CLICKS",
			BillingEvent:     "IMPRESSIONS",
			DestinationType:  "WEBSITE",
			Style:            styleLink,
			CallToAction:     "LEARN_MORE",
		}, nil

	case objective.Leads:
		if location == LocationCalls {
			return calls()
		}
		if location == LocationWebsite {
			if acct.PixelID == "" {
				return adSetPlan{}, apperrors.Configuration(op, "website leads need a pixel id on the ad account")
			}
			return adSetPlan{
				OptimizationGoal: "OFFSITE_CONVERSIONS",
				BillingEvent:     "IMPRESSIONS",
				DestinationType:  "WEBSITE",
				PromotedObject:   meta.Params{"pixel_id": acct.PixelID, "custom_event_type": "LEAD"},
				Style:            styleLink,
				CallToAction:     "SIGN_UP",
			}, nil
		}
		if acct.PageID == "" {
			return adSetPlan{}, apperrors.Configuration(op, "lead forms need a connected page id")
		}
		return adSetPlan{
			OptimizationGoal: "LEAD_GENERATION",
			BillingEvent:     "IMPRESSIONS",
			DestinationType:  "ON_AD",
			PromotedObject:   meta.Params{"page_id": acct.PageID},
			Style:            styleLink,
			CallToAction:     "SIGN_UP",
		}, nil

	case objective.Sales:
		if acct.PixelID == "" {
			return adSetPlan{}, apperrors.Configuration(op, "SALES needs a pixel id on the ad account")
		}
		return adSetPlan{
			OptimizationGoal: "OFFSITE_CONVERSIONS",
			BillingEvent:     "IMPRESSIONS",
			DestinationType:  "WEBSITE",
			PromotedObject:   meta.Params{"pixel_id": acct.PixelID, "custom_event_type": "PURCHASE"},
			Style:            styleLink,
			CallToAction:     "SHOP_NOW",
		}, nil

	case objective.Engagement:
		switch location {
		case LocationCalls:
			return calls()
		case LocationMessages:
			if err := requirePage(); err != nil {
				return adSetPlan{}, err
			}
			return adSetPlan{
				OptimizationGoal: "CONVERSATIONS",
				BillingEvent:     "IMPRESSIONS",
				DestinationType:  "WHATSAPP",
				PromotedObject:   meta.Params{"page_id": acct.PageID},
				Style:            stylePhoto,
				CallToAction:     "WHATSAPP_MESSAGE",
			}, nil
		}
		return adSetPlan{
			OptimizationGoal: "POST_ENGAGEMENT",
			BillingEvent:     "IMPRESSIONS",
			DestinationType:  "ON_POST",
			Style:            stylePhoto,
		}, nil

	case objective.Awareness:
		return adSetPlan{
			OptimizationGoal: "REACH",
			BillingEvent:     "IMPRESSIONS",
			Style:            styleLink,
			CallToAction:     "LEARN_MORE",
			LinkOptional:     true,
		}, nil

	case objective.AppPromotion:
		if acct.AppID == "" || acct.AppStoreURL == "" {
			return adSetPlan{}, apperrors.Configuration(op, "APP_PROMOTION needs an application id and store url")
		}
		return adSetPlan{
			OptimizationGoal: "APP_INSTALLS",
			BillingEvent:     "IMPRESSIONS",
			PromotedObject:   meta.Params{"application_id": acct.AppID, "object_store_url": acct.AppStoreURL},
			Style:            styleLink,
			CallToAction:     "INSTALL_MOBILE_APP",
		}, nil
	}
	return adSetPlan{}, apperrors.Configuration(op, "no ad set mapping for objective %q", obj)
}

// destination is the resolved target of a creative.
type destination struct {
	URL   string
	Phone string
}

// creativeFor settles the creative style for a strategy and resolves its destination.
func (b *Builder) creativeFor(plan adSetPlan, st Strategy, obj objective.Objective, spec AdSetSpec, in Intent, acct Account) (creativeStyle, destination, error) {
	style := plan.Style
	if st.PhotoOnly {
		style = stylePhoto
	}
	if style == styleLink && plan.LinkOptional && firstNonEmpty(spec.Creative.DestinationURL, in.DestinationURL, acct.WebsiteURL) == "" {
		style = stylePhoto
	}
	dest, err := b.resolveDestination(style, obj, spec, in, acct)
	return style, dest, err
}

// resolveDestination picks the creative URL or phone for a style. URL order:
// creative, intent, business profile. App installs always go to the store url.
func (b *Builder) resolveDestination(style creativeStyle, obj objective.Objective, spec AdSetSpec, in Intent, acct Account) (destination, error) {
	const op = "campaign.destination"
	switch style {
	case styleLink:
		if obj == objective.AppPromotion {
			return destination{URL: acct.AppStoreURL}, nil
		}
		url := firstNonEmpty(spec.Creative.DestinationURL, in.DestinationURL, acct.WebsiteURL)
		if url == "" {
			return destination{}, apperrors.Validation(op, "%s needs a destination website url", obj)
		}
		return destination{URL: url}, nil
	case styleCall:
		raw := firstNonEmpty(spec.Creative.Phone, in.Phone, acct.Phone)
		if raw == "" {
			return destination{}, apperrors.Validation(op, "call ads need a phone number")
		}
		phone, ok := NormalizePhone(raw, b.countryCode)
		if !ok {
			return destination{}, apperrors.Validation(op, "phone number %q is not a recognised format", raw)
		}
		return destination{Phone: phone, URL: firstNonEmpty(spec.Creative.DestinationURL, in.DestinationURL, acct.WebsiteURL)}, nil
	}
	return destination{URL: firstNonEmpty(spec.Creative.DestinationURL, in.DestinationURL, acct.WebsiteURL)}, nil
}

func campaignParams(in Intent, obj objective.Objective) meta.Params {
	return meta.Params{
		"name":                            in.Name,
		"objective":                       obj.PlatformCode(),
		"status":                          in.status(),
		"special_ad_categories":           []string{},
		"is_adset_budget_sharing_enabled": false,
	}
}

func (b *Builder) adSetParams(in Intent, spec AdSetSpec, campaignID string, plan adSetPlan, st Strategy) meta.Params {
	p := meta.Params{
		"name":              fmt.Sprintf("%s - %s", spec.name(in), st.Placement.label()),
		"campaign_id":       campaignID,
		"billing_event":     plan.BillingEvent,
		"optimization_goal": plan.OptimizationGoal,
		"bid_strategy":      "LOWEST_COST_WITHOUT_CAP",
		"targeting":         b.targeting(spec.targeting(in), st.Placement),
		"status":            in.status(),
	}
	if plan.DestinationType != "" {
		p["destination_type"] = plan.DestinationType
	}
	if len(plan.PromotedObject) > 0 {
		p["promoted_object"] = plan.PromotedObject
	}

	budget := spec.budget(in)
	minor := int64(math.Round(budget.Amount * 100))
	now := b.now().UTC()
	if strings.EqualFold(budget.Type, "LIFETIME") {
		p["lifetime_budget"] = minor
		p["start_time"] = now.Format(time.RFC3339)
		end := in.EndTime
		if end.IsZero() {
			end = now.Add(defaultLifetime)
		}
		p["end_time"] = end.UTC().Format(time.RFC3339)
	} else {
		p["daily_budget"] = minor
	}
	return p
}

func (b *Builder) targeting(t state.Targeting, pl Placement) meta.Params {
	countries := t.Countries
	if len(countries) == 0 {
		countries = []string{b.targetCountry}
	}
	geo := meta.Params{"countries": countries}
	if len(t.Cities) > 0 {
		cities := make([]meta.Params, len(t.Cities))
		for i, c := range t.Cities {
			cities[i] = meta.Params{"key": c}
		}
		geo["cities"] = cities
	}
	out := meta.Params{
		"geo_locations":       geo,
		"age_min":             orDefault(t.AgeMin, 18),
		"age_max":             orDefault(t.AgeMax, 65),
		"publisher_platforms": pl.Platforms,
	}
	if len(pl.FacebookPositions) > 0 {
		out["facebook_positions"] = pl.FacebookPositions
	}
	if len(pl.InstagramPositions) > 0 {
		out["instagram_positions"] = pl.InstagramPositions
	}
	if len(t.Genders) > 0 {
		out["genders"] = t.Genders
	}
	if len(t.Interests) > 0 {
		interests := make([]meta.Params, len(t.Interests))
		for i, id := range t.Interests {
			interests[i] = meta.Params{"id": id}
		}
		out["flexible_spec"] = []meta.Params{{"interests": interests}}
	}
	return out
}

func creativeParams(name string, style creativeStyle, plan adSetPlan, c CreativeSpec, dest destination, acct Account, st Strategy) meta.Params {
	story := meta.Params{"page_id": acct.PageID}
	if st.UseActor && acct.InstagramActorID != "" {
		story["instagram_user_id"] = acct.InstagramActorID
	}
	message := c.message()

	switch style {
	case styleLink:
		link := meta.Params{
			"link":    dest.URL,
			"message": message,
			"picture": c.ImageURL,
		}
		if c.Headline != "" {
			link["name"] = c.Headline
		}
		if plan.CallToAction != "" {
			link["call_to_action"] = meta.Params{"type": plan.CallToAction, "value": meta.Params{"link": dest.URL}}
		}
		story["link_data"] = link
	case styleCall:
		link := meta.Params{
			"link":           firstNonEmpty(dest.URL, "https://www.facebook.com/"+acct.PageID),
			"message":        message,
			"picture":        c.ImageURL,
			"call_to_action": meta.Params{"type": "CALL_NOW", "value": meta.Params{"link": "tel:" + dest.Phone}},
		}
		if c.Headline != "" {
			link["name"] = c.Headline
		}
		story["link_data"] = link
	default:
		photo := meta.Params{"url": c.ImageURL, "caption": message}
		story["photo_data"] = photo
	}
	return meta.Params{"name": name, "object_story_spec": story}
}

func (p Placement) label() string {
	return strings.Join(p.Platforms, "+")
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
