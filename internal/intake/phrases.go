package intake

import (
	"regexp"
	"strings"
)

var (
	triggerPhrases = []string{
		"create a post", "create post", "make a post", "make post", "new post",
		"instagram post", "post on instagram", "post to instagram", "publish a post",
		"write a post", "social post", "draft a post",
	}
	cancelWords = map[string]bool{
		"cancel": true, "stop": true, "abort": true, "reset": true, "quit": true,
		"start over": true, "cancel post": true, "nevermind": true, "never mind": true,
	}
	affirmativeWords = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "ok": true, "okay": true,
		"sure": true, "confirm": true, "confirmed": true, "publish": true, "approve": true,
		"approved": true, "go ahead": true, "looks good": true, "post it": true, "do it": true,
		"👍": true, "publish it": true, "post it now": true, "publish now": true, "go for it": true,
	}
	politeTails = map[string]bool{
		"please": true, "thanks": true, "thank you": true, "thx": true, "great": true,
		"perfect": true, "love it": true, "👍": true,
	}
	separators  = strings.NewReplacer(",", " ", "!", " ", ".", " ")
	punctuation = regexp.MustCompile(`[.!?,;:]+$`)
)

func normalize(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	return strings.Join(strings.Fields(punctuation.ReplaceAllString(s, "")), " ")
}

// IsTrigger reports whether msg starts a new intake session.
func IsTrigger(msg string) bool {
	s := normalize(msg)
	for _, p := range triggerPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// StripTrigger returns what follows the trigger phrase, minus a leading
// "about"/"for", so only the remainder counts towards the post context.
func StripTrigger(msg string) string {
	for _, p := range triggerPhrases {
		if i := indexFold(msg, p); i >= 0 {
			rest := strings.TrimSpace(msg[i+len(p):])
			for _, lead := range []string{"about", "for", "on", "regarding"} {
				if strings.EqualFold(rest, lead) {
					return ""
				}
				if len(rest) > len(lead) && rest[len(lead)] == ' ' && strings.EqualFold(rest[:len(lead)], lead) {
					rest = rest[len(lead)+1:]
					break
				}
			}
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(msg)
}

// indexFold is a case-insensitive strings.Index for an ASCII needle. Offsets
// refer to s itself, so they stay valid for slicing s.
func indexFold(s, needle string) int {
	for i := 0; i+len(needle) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// IsCancel reports whether msg is a cancellation keyword.
func IsCancel(msg string) bool {
	return cancelWords[normalize(msg)]
}

// IsAffirmative accepts a confirmation token, alone or followed only by more
// confirmation ("yes, publish it", "ok thanks"). "ok, but shorter" is not one.
func IsAffirmative(msg string) bool {
	return affirmative(separators.Replace(normalize(msg)))
}

func affirmative(s string) bool {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return false
	}
	if affirmativeWords[s] {
		return true
	}
	for w := range affirmativeWords {
		if rest, ok := strings.CutPrefix(s, w+" "); ok && (politeTails[rest] || affirmative(rest)) {
			return true
		}
	}
	return false
}
