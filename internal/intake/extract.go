package intake

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	urlPattern       = regexp.MustCompile(`(?i)\b((?:https?://|www\.)[^\s<>"']+)`)
	phonePattern     = regexp.MustCompile(`(?:\+|\b)\d[\d\s().-]{8,}\d\b`)
	namePattern      = regexp.MustCompile(`(?i)\b(?:campaign\s+name|name\s+it|call\s+it|named)\s*[:=]?\s*["']?([^"'\n,.;]{2,60})`)
	headlinePattern  = regexp.MustCompile(`(?i)\bheadline\s*(?:is|:|=)?\s*["']?([^"'\n.;,]{2,80})`)
	budgetPattern    = regexp.MustCompile(`(?i)(?:budget\s*(?:of|is|:|=)?\s*)?(?:(₹|rs\.?|inr|\$|usd|€|eur|£|gbp)\s*)?(\d[\d,]*(?:\.\d+)?)\s*(₹|rs\.?|inr|\$|usd|€|eur|£|gbp|rupees|dollars)?\s*(?:/|per|a)?\s*(day|daily|week|month|total|lifetime)?`)
	objectivePattern = regexp.MustCompile(`(?i)\b(?:objective|goal)\s*(?:is|:|=)?\s*([a-z_ -]{3,40})`)
)

// Fields are the structured values scraped from a free-text instruction.
// Every field is optional.
type Fields struct {
	Website       *string
	Phone         *string
	CampaignName  *string
	Headline      *string
	Budget        *BudgetField
	ObjectiveHint *string
}

type BudgetField struct {
	Amount   float64
	Currency string
	Type     string // DAILY or LIFETIME
}

// ExtractFields scrapes the optional structured fields out of text.
func ExtractFields(text string) Fields {
	var f Fields
	if u := ExtractURL(text); u != "" {
		f.Website = &u
	}
	withoutURLs := urlPattern.ReplaceAllString(text, " ")
	if m := phonePattern.FindString(withoutURLs); m != "" {
		p := strings.TrimSpace(m)
		f.Phone = &p
	}
	if m := namePattern.FindStringSubmatch(withoutURLs); m != nil {
		n := strings.TrimSpace(m[1])
		f.CampaignName = &n
	}
	if m := headlinePattern.FindStringSubmatch(withoutURLs); m != nil {
		h := strings.TrimSpace(m[1])
		f.Headline = &h
	}
	if b := extractBudget(withoutURLs); b != nil {
		f.Budget = b
	}
	if m := objectivePattern.FindStringSubmatch(withoutURLs); m != nil {
		o := strings.TrimSpace(m[1])
		f.ObjectiveHint = &o
	}
	return f
}

// ExtractURL returns the first URL in text, with a scheme added to bare www. hosts.
func ExtractURL(text string) string {
	m := urlPattern.FindString(text)
	if m == "" {
		return ""
	}
	m = strings.TrimRight(m, ".,;:!?)")
	if strings.HasPrefix(strings.ToLower(m), "www.") {
		m = "https://" + m
	}
	return m
}

// StripURLs removes URLs and collapses whitespace.
func StripURLs(text string) string {
	return strings.Join(strings.Fields(urlPattern.ReplaceAllString(text, " ")), " ")
}

// extractBudget only accepts amounts that carry a currency or the word budget,
// so stray numbers (ages, phone digits) are not mistaken for money.
func extractBudget(text string) *BudgetField {
	lower := strings.ToLower(text)
	for _, m := range budgetPattern.FindAllStringSubmatch(text, -1) {
		prefix, amount, suffix, period := m[1], m[2], m[3], strings.ToLower(m[4])
		hasBudgetWord := strings.Contains(strings.ToLower(m[0]), "budget")
		if prefix == "" && suffix == "" && !hasBudgetWord {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		b := &BudgetField{Amount: v, Currency: currencyCode(prefix + suffix), Type: "DAILY"}
		switch period {
		case "total", "lifetime":
			b.Type = "LIFETIME"
		case "":
			if strings.Contains(lower, "lifetime") || strings.Contains(lower, "total budget") {
				b.Type = "LIFETIME"
			}
		}
		return b
	}
	return nil
}

func currencyCode(sym string) string {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(sym)), ".") {
	case "₹", "rs", "inr", "rupees":
		return "INR"
	case "$", "usd", "dollars":
		return "USD"
	case "€", "eur":
		return "EUR"
	case "£", "gbp":
		return "GBP"
	}
	return ""
}
