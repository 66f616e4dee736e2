package sanitizer

import "regexp"

// ContactSanitizer убирает идентификаторы мессенджеров, которые зрители
// оставляют в чате: wechat, qq.
type ContactSanitizer struct{}

var contactPattern = regexp.MustCompile(`(?i)(微信号?|vx|wx|v信|qq号?)\s*[:：=]?\s*[a-zA-Z0-9_-]{5,20}`)

func (s *ContactSanitizer) Sanitize(text string) string {
	return contactPattern.ReplaceAllString(text, `${1} [FILTERED_CONTACT]`)
}
