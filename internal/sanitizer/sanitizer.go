// Package sanitizer вычищает персональные данные зрителей из текста
// перед отправкой во внешнюю модель.
package sanitizer

type DataSanitizer struct {
	rules []SanitizerRule
}

type SanitizerRule interface {
	Sanitize(text string) string
}

// New собирает правила в порядке от длинных числовых шаблонов к коротким:
// номер паспорта поглощается раньше, чем его хвост примут за телефон.
func New() *DataSanitizer {
	return &DataSanitizer{
		rules: []SanitizerRule{
			&URLSanitizer{},
			&EmailSanitizer{},
			&IDCardSanitizer{},
			&CardSanitizer{},
			&PhoneSanitizer{},
			&ContactSanitizer{},
		},
	}
}

func (s *DataSanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, rule := range s.rules {
		result = rule.Sanitize(result)
	}

	return result
}

// SanitizeNick оставляет от ника первый символ, остальное маскирует.
func (s *DataSanitizer) SanitizeNick(nick string) string {
	r := []rune(nick)
	if len(r) <= 1 {
		return nick
	}
	masked := make([]rune, len(r))
	masked[0] = r[0]
	for i := 1; i < len(r); i++ {
		masked[i] = '*'
	}
	return string(masked)
}
