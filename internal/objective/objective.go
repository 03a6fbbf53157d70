// Package objective maps free-text campaign goals onto the platform objective taxonomy.
package objective

import "strings"

type Objective string

const (
	Traffic      Objective = "TRAFFIC"
	Leads        Objective = "LEADS"
	Sales        Objective = "SALES"
	Engagement   Objective = "ENGAGEMENT"
	Awareness    Objective = "AWARENESS"
	AppPromotion Objective = "APP_PROMOTION"
)

// Default is used whenever nothing else matches.
const Default = Traffic

// exact holds platform codes and common synonyms, keyed by their normalized form.
var exact = map[string]Objective{
	"TRAFFIC":         Traffic,
	"OUTCOME_TRAFFIC": Traffic,
	"LINK_CLICKS":     Traffic,
	"WEBSITE_TRAFFIC": Traffic,
	"WEBSITE_VISITS":  Traffic,
	"CLICKS":          Traffic,

	"LEADS":           Leads,
	"LEAD":            Leads,
	"OUTCOME_LEADS":   Leads,
	"LEAD_GENERATION": Leads,

	"SALES":         Sales,
	"OUTCOME_SALES": Sales,
	"CONVERSIONS":   Sales,
	"PURCHASES":     Sales,
	"PRODUCT_SALES": Sales,
	"CATALOG_SALES": Sales,

	"ENGAGEMENT":         Engagement,
	"OUTCOME_ENGAGEMENT": Engagement,
	"POST_ENGAGEMENT":    Engagement,
	"MESSAGES":           Engagement,
	"PAGE_LIKES":         Engagement,

	"AWARENESS":         Awareness,
	"OUTCOME_AWARENESS": Awareness,
	"BRAND_AWARENESS":   Awareness,
	"REACH":             Awareness,

	"APP_PROMOTION":         AppPromotion,
	"OUTCOME_APP_PROMOTION": AppPromotion,
	"APP_INSTALLS":          AppPromotion,
}

// fuzzy rules are evaluated in order; the first rule with a matching token wins.
var fuzzy = []struct {
	tokens []string
	target Objective
}{
	{[]string{"TRAFFIC", "CLICK", "VISIT", "WEBSITE", "LINK"}, Traffic},
	{[]string{"LEAD", "FORM", "SIGNUP", "SIGN_UP", "ENQUIR", "INQUIR"}, Leads},
	{[]string{"SALE", "CONVERSION", "PURCHASE", "SHOP", "ORDER"}, Sales},
	{[]string{"MESSAGE", "WHATSAPP", "MESSENGER", "CHAT", "ENGAGE", "LIKE", "COMMENT"}, Engagement},
	{[]string{"AWARE", "REACH", "BRAND", "IMPRESSION"}, Awareness},
}

// Normalize returns exactly one canonical objective for any input.
func Normalize(raw string) Objective {
	key := canonical(raw)
	if key == "" {
		return Default
	}
	if o, ok := exact[key]; ok {
		return o
	}
	for _, rule := range fuzzy {
		for _, tok := range rule.tokens {
			if strings.Contains(key, tok) {
				return rule.target
			}
		}
	}
	return Default
}

func canonical(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// PlatformCode is the value sent as the campaign "objective" parameter.
func (o Objective) PlatformCode() string {
	return "OUTCOME_" + string(o)
}

func (o Objective) String() string { return string(o) }

// FallbackChain returns the candidates tried when the platform rejects an objective:
// the requested one first, then TRAFFIC, AWARENESS, ENGAGEMENT, without duplicates.
func FallbackChain(requested Objective) []Objective {
	chain := []Objective{requested, Traffic, Awareness, Engagement}
	seen := make(map[Objective]bool, len(chain))
	out := make([]Objective, 0, len(chain))
	for _, o := range chain {
		if seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}
