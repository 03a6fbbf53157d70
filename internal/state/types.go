// Package state defines the per-conversation state document and the policy
// for merging it across turns.
package state

import (
	"strings"
	"time"
)

type Stage string

// Intake stages, in forward order.
const (
	StageBusinessResolution        Stage = "BUSINESS_RESOLUTION"
	StageBusinessResolutionWaiting Stage = "BUSINESS_RESOLUTION_WAITING"
	StageContextResolution         Stage = "CONTEXT_RESOLUTION"
	StageAssetResolution           Stage = "ASSET_RESOLUTION"
	StageContentGeneration         Stage = "CONTENT_GENERATION"
	StagePreview                   Stage = "PREVIEW"
	StageCompleted                 Stage = "COMPLETED"
)

var stageOrder = map[Stage]int{
	StageBusinessResolution:        0,
	StageBusinessResolutionWaiting: 1,
	StageContextResolution:         2,
	StageAssetResolution:           3,
	StageContentGeneration:         4,
	StagePreview:                   5,
	StageCompleted:                 6,
}

// Rank returns the stage's position in the forward order, or -1 if unknown.
func (s Stage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

type CampaignStage string

const (
	CampaignReadyToLaunch CampaignStage = "READY_TO_LAUNCH"
	CampaignCompleted     CampaignStage = "COMPLETED"
)

// OrganicPostObjective marks a campaign state that carries an organic post draft.
const OrganicPostObjective = "ORGANIC_POST"

type Candidate struct {
	PageID      string `json:"pageId"`
	Name        string `json:"name"`
	InstagramID string `json:"instagramId,omitempty"`
}

type IntakeContext struct {
	RawIntent string `json:"rawIntent,omitempty"`
	Website   string `json:"website,omitempty"`
	Service   string `json:"service,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}

type Assets struct {
	LogoURL    string `json:"logoUrl,omitempty"`
	LogoText   string `json:"logoText,omitempty"`
	WebsiteURL string `json:"websiteUrl,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Footer     string `json:"footer,omitempty"`
	Source     string `json:"source,omitempty"` // existing, business, text
}

type Content struct {
	Caption     string   `json:"caption,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	ImagePrompt string   `json:"imagePrompt,omitempty"`
}

// FinalCaption is the caption with hashtags appended, as published.
func (c Content) FinalCaption() string {
	tags := FormatHashtags(c.Hashtags)
	if tags == "" {
		return strings.TrimSpace(c.Caption)
	}
	return strings.TrimSpace(c.Caption) + "\n\n" + tags
}

type IntakeState struct {
	Stage         Stage          `json:"stage"`
	BusinessID    string         `json:"businessId,omitempty"`
	BusinessName  string         `json:"businessName,omitempty"`
	InstagramID   string         `json:"instagramId,omitempty"`
	Candidates    []Candidate    `json:"candidates,omitempty"`
	Context       IntakeContext  `json:"context"`
	Assets        Assets         `json:"assets"`
	Content       Content        `json:"content"`
	CampaignState *CampaignState `json:"campaignState,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type Budget struct {
	Amount   float64 `json:"amount,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Type     string  `json:"type,omitempty"` // DAILY or LIFETIME
}

type Creative struct {
	ImageURL       string   `json:"imageUrl,omitempty"`
	PrimaryText    string   `json:"primaryText,omitempty"`
	Headline       string   `json:"headline,omitempty"`
	DestinationURL string   `json:"destinationUrl,omitempty"`
	Hashtags       []string `json:"hashtags,omitempty"`
}

type Targeting struct {
	Countries []string `json:"countries,omitempty"`
	Cities    []string `json:"cities,omitempty"`
	AgeMin    int      `json:"ageMin,omitempty"`
	AgeMax    int      `json:"ageMax,omitempty"`
	Genders   []int    `json:"genders,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

type CampaignState struct {
	Name               string         `json:"name,omitempty"`
	Objective          string         `json:"objective,omitempty"`
	ConversionLocation string         `json:"conversionLocation,omitempty"`
	Budget             *Budget        `json:"budget,omitempty"`
	Targeting          *Targeting     `json:"targeting,omitempty"`
	Creative           *Creative      `json:"creative,omitempty"`
	Stage              CampaignStage  `json:"stage,omitempty"`
	Plan               map[string]any `json:"plan,omitempty"`
}

// Launchable reports whether both the image and the primary text are known.
func (c *CampaignState) Launchable() bool {
	return c != nil && c.Creative != nil &&
		strings.TrimSpace(c.Creative.ImageURL) != "" &&
		strings.TrimSpace(c.Creative.PrimaryText) != ""
}

func (c *CampaignState) HasBudget() bool {
	return c != nil && c.Budget != nil && c.Budget.Amount > 0
}

// FormatHashtags renders tags as "#a #b", adding the # where missing.
func FormatHashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}
