package conversation

import (
	"strings"

	"adpilot/internal/intake"
	"adpilot/internal/state"
)

// Reply is the per-turn answer: a question, a publish intent, an execution
// result, or an error.
type Reply struct {
	Question string                 `json:"question,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Intent   string                 `json:"intent,omitempty"`
	Payload  *intake.PublishPayload `json:"payload,omitempty"`
	ImageURL string                 `json:"imageUrl,omitempty"`
	Result   any                    `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Stage    state.Stage            `json:"stage,omitempty"`
}

func fromIntake(r intake.Response) Reply {
	return Reply{
		Question: r.Question,
		Message:  r.Message,
		Intent:   r.Intent,
		Payload:  r.Payload,
		ImageURL: r.ImageURL,
		Error:    r.Error,
		Stage:    r.Stage,
	}
}

// Text renders the reply for a plain chat channel.
func (r Reply) Text() string {
	if r.Error != "" {
		return "Sorry, that didn't work: " + r.Error
	}
	var parts []string
	for _, s := range []string{r.Message, r.Question} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if r.Intent == intake.IntentPublish && r.Payload != nil && r.Message == "" {
		parts = append(parts, "Approved. Publishing your post now.")
	}
	return strings.Join(parts, "\n\n")
}
