package sanitizer

import "regexp"

type CardSanitizer struct{}

var cardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4,7}\b`),
	regexp.MustCompile(`(?i)(银行卡|卡号|card[_-]?number)\s*[:：=]?\s*\d{12,19}`),
}

func (s *CardSanitizer) Sanitize(text string) string {
	for _, pattern := range cardPatterns {
		text = pattern.ReplaceAllString(text, `[FILTERED_CARD]`)
	}

	return text
}

// IDCardSanitizer закрывает 18-значный номер удостоверения личности КНР.
type IDCardSanitizer struct{}

var idCardPattern = regexp.MustCompile(`\b[1-9]\d{5}(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dXx]\b`)

func (s *IDCardSanitizer) Sanitize(text string) string {
	return idCardPattern.ReplaceAllString(text, `[FILTERED_ID]`)
}
