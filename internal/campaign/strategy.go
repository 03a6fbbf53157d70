package campaign

import (
	"encoding/json"
	"errors"
	"strings"

	"adpilot/internal/meta"
	"adpilot/internal/objective"
)

// Placement is the set of publishing surfaces an ad set delivers to.
type Placement struct {
	Platforms          []string `json:"publisher_platforms"`
	FacebookPositions  []string `json:"facebook_positions,omitempty"`
	InstagramPositions []string `json:"instagram_positions,omitempty"`
}

// Signature serializes the placement; ad sets with equal signatures are
// interchangeable within one run.
func (p Placement) Signature() string {
	b, _ := json.Marshal(p)
	return string(b)
}

var (
	PrimaryPlacements = Placement{
		Platforms:          []string{"facebook", "instagram"},
		FacebookPositions:  []string{"feed"},
		InstagramPositions: []string{"stream", "story"},
	}
	FacebookOnlyPlacements = Placement{
		Platforms:         []string{"facebook"},
		FacebookPositions: []string{"feed"},
	}
)

// Strategy is one attempt at an ad set + creative pairing.
type Strategy struct {
	Name      string
	Placement Placement
	UseActor  bool // attach the Instagram actor id to the creative
	PhotoOnly bool // force a photo creative regardless of destination
}

// DefaultStrategies is the creative fallback order for an effective objective.
func DefaultStrategies(effective objective.Objective) []Strategy {
	out := []Strategy{
		{Name: "primary_with_actor", Placement: PrimaryPlacements, UseActor: true},
		{Name: "primary_without_actor", Placement: PrimaryPlacements},
		{Name: "facebook_only", Placement: FacebookOnlyPlacements},
	}
	if effective == objective.Awareness {
		out = append(out, Strategy{Name: "photo_only", Placement: FacebookOnlyPlacements, PhotoOnly: true})
	}
	return out
}

type Class int

const (
	Fatal Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// graph error codes that mean the credential itself is unusable
var fatalCodes = map[int]bool{
	10:  true, // permission denied
	102: true, // session invalid
	190: true, // access token invalid or expired
	200: true, // permissions error
	368: true, // temporarily blocked for policy violations
}

var retryableMarkers = []string{
	"invalid parameter",
	"objective",
	"optimization goal",
	"optimization_goal",
	"placement",
	"promoted object",
	"promoted_object",
	"destination type",
	"destination_type",
	"instagram",
	"not supported",
	"not available",
	"incompatible",
	"call to action",
}

// Classify decides whether a remote failure can be absorbed by trying the next
// objective or strategy. This is the only place that looks at remote error text.
func Classify(err error) Class {
	var ge *meta.GraphError
	if !errors.As(err, &ge) {
		return Fatal
	}
	if fatalCodes[ge.Code] {
		return Fatal
	}
	if ge.Code == 100 {
		return Retryable
	}
	text := strings.ToLower(ge.Message + " " + ge.UserTitle + " " + ge.UserMessage)
	for _, m := range retryableMarkers {
		if strings.Contains(text, m) {
			return Retryable
		}
	}
	return Fatal
}
