// Package generation produces captions and images for a post draft.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TextGenerator returns free text for a structured prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator returns the URL of one image for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type Caption struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

// Brief is what both prompts are rendered from.
type Brief struct {
	BusinessName string
	Topic        string
	Website      string
	Service      string
	Footer       string
	Feedback     string
}

var ErrNoJSON = errors.New("no JSON object in generated text")

// ExtractCaption pulls the first {caption, hashtags} object out of text that
// may be wrapped in prose or code fences. Hashtags may be a list or a single
// space/comma separated string.
func ExtractCaption(text string) (Caption, error) {
	for start := strings.Index(text, "{"); start >= 0; {
		end := matchingBrace(text, start)
		if end < 0 {
			break
		}
		var raw struct {
			Caption  string          `json:"caption"`
			Hashtags json.RawMessage `json:"hashtags"`
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err == nil && strings.TrimSpace(raw.Caption) != "" {
			return Caption{Caption: strings.TrimSpace(raw.Caption), Hashtags: decodeHashtags(raw.Hashtags)}, nil
		}
		next := strings.Index(text[start+1:], "{")
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return Caption{}, ErrNoJSON
}

// matchingBrace returns the index of the brace closing the one at open,
// skipping braces inside JSON strings.
func matchingBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeHashtags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanTags(list)
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return cleanTags(strings.FieldsFunc(joined, func(r rune) bool {
			return r == ' ' || r == ',' || r == '\n'
		}))
	}
	return nil
}

func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t != "" {
			out = append(out, "#"+t)
		}
	}
	return out
}

// FallbackCaption is the deterministic caption used when text generation fails.
func FallbackCaption(b Brief) Caption {
	name := strings.TrimSpace(b.BusinessName)
	if name == "" {
		name = "us"
	}
	topic := strings.TrimSpace(b.Topic)
	var caption string
	if topic == "" {
		caption = fmt.Sprintf("Discover what's new at %s!", name)
	} else {
		caption = fmt.Sprintf("%s - discover it at %s!", capitalize(topic), name)
	}
	if b.Footer != "" {
		caption += "\n" + b.Footer
	}
	return Caption{Caption: caption, Hashtags: []string{"#" + hashtagWord(name), "#new", "#discover"}}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func hashtagWord(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "brand"
	}
	return strings.ToLower(b.String())
}

func CaptionPrompt(b Brief) string {
	var sb strings.Builder
	sb.WriteString("You write Instagram captions for small businesses.\n")
	sb.WriteString("Reply ONLY with JSON: {\"caption\": \"...\", \"hashtags\": [\"#...\"]}.\n")
	sb.WriteString("Keep the caption under 300 characters and give 5 to 8 hashtags.\n\n")
	fmt.Fprintf(&sb, "BUSINESS: %s\n", b.BusinessName)
	fmt.Fprintf(&sb, "TOPIC: %s\n", b.Topic)
	if b.Service != "" {
		fmt.Fprintf(&sb, "SERVICE: %s\n", b.Service)
	}
	if b.Website != "" {
		fmt.Fprintf(&sb, "WEBSITE: %s\n", b.Website)
	}
	if b.Footer != "" {
		fmt.Fprintf(&sb, "CONTACT LINE: %s\n", b.Footer)
	}
	if b.Feedback != "" {
		fmt.Fprintf(&sb, "REVISION REQUEST FROM THE OWNER: %s\n", b.Feedback)
	}
	return sb.String()
}

func ImagePrompt(b Brief) string {
	prompt := fmt.Sprintf("A clean, eye-catching square social media image for %s about %s. Photographic style, bright natural light, no text overlays.",
		b.BusinessName, b.Topic)
	if b.Feedback != "" {
		prompt += " Adjust for this feedback: " + b.Feedback
	}
	return prompt
}
