package sanitizer

import "regexp"

type PhoneSanitizer struct{}

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:\+?86[-\s]?)?1[3-9]\d[-\s]?\d{4}[-\s]?\d{4}`),
	regexp.MustCompile(`\b0\d{2,3}-\d{7,8}\b`),
	regexp.MustCompile(`(?i)(电话|手机|tel|phone)\s*[:：=]\s*[+\d\s\-()]{7,}`),
}

func (s *PhoneSanitizer) Sanitize(text string) string {
	for _, pattern := range phonePatterns {
		text = pattern.ReplaceAllString(text, `[FILTERED_PHONE]`)
	}

	return text
}
