package platform

import (
	"errors"
	"fmt"
	"strings"
)

// Kind - класс отказа. Сообщение оператору определяется только видом,
// подробности идут в поля и в лог.
type Kind int

const (
	KindUnexpected Kind = iota
	KindConnection
	KindElementNotFound
	KindElementDisabled
	KindContentMismatch
	KindPageNotFound
	KindMaxRetriesExceeded
	KindCapabilityMissing
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindElementNotFound:
		return "element-not-found"
	case KindElementDisabled:
		return "element-disabled"
	case KindContentMismatch:
		return "content-mismatch"
	case KindPageNotFound:
		return "page-not-found"
	case KindMaxRetriesExceeded:
		return "max-retries-exceeded"
	case KindCapabilityMissing:
		return "capability-missing"
	default:
		return "unexpected"
	}
}

// kindMessages - тексты для оператора. Плейсхолдеры подставляются из полей Error.
var kindMessages = map[Kind]string{
	KindUnexpected:         "Непредвиденная ошибка: {detail}",
	KindConnection:         "Не удалось открыть страницу управления трансляцией",
	KindElementNotFound:    "Не найден элемент «{element}» на странице",
	KindElementDisabled:    "Элемент «{element}» неактивен",
	KindContentMismatch:    "Содержимое «{element}» не совпало: ожидалось «{expected}», получено «{actual}»",
	KindPageNotFound:       "Страница управления трансляцией не найдена",
	KindMaxRetriesExceeded: "Задача «{task}» не выполнена после {max} попыток",
	KindCapabilityMissing:  "Платформа {platform} не поддерживает функцию «{feature}»",
}

// Error - классифицированный отказ адаптера или задачи.
type Error struct {
	Kind       Kind
	Platform   Name
	Feature    string
	Element    string
	Selector   string
	Expected   string
	Actual     string
	Task       string
	MaxRetries int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	msg, ok := kindMessages[e.Kind]
	if !ok {
		msg = kindMessages[KindUnexpected]
	}

	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}

	return strings.NewReplacer(
		"{detail}", detail,
		"{element}", e.Element,
		"{expected}", e.Expected,
		"{actual}", e.Actual,
		"{task}", e.Task,
		"{max}", fmt.Sprint(e.MaxRetries),
		"{platform}", string(e.Platform),
		"{feature}", e.Feature,
	).Replace(msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает вид первой platform.Error в цепочке.
// Для прочих ошибок - KindUnexpected.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnexpected
}

func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

func ErrConnection(p Name, err error) *Error {
	return &Error{Kind: KindConnection, Platform: p, Err: err}
}

func ErrElementNotFound(element, selector string, err error) *Error {
	return &Error{Kind: KindElementNotFound, Element: element, Selector: selector, Err: err}
}

func ErrElementDisabled(element, selector string) *Error {
	return &Error{Kind: KindElementDisabled, Element: element, Selector: selector}
}

func ErrContentMismatch(element, expected, actual string) *Error {
	return &Error{Kind: KindContentMismatch, Element: element, Expected: expected, Actual: actual}
}

func ErrPageNotFound(p Name, detail string) *Error {
	return &Error{Kind: KindPageNotFound, Platform: p, Detail: detail}
}

func ErrMaxRetries(task string, max int, last error) *Error {
	return &Error{Kind: KindMaxRetriesExceeded, Task: task, MaxRetries: max, Err: last}
}

func ErrCapabilityMissing(p Name, feature string) *Error {
	return &Error{Kind: KindCapabilityMissing, Platform: p, Feature: feature}
}

func ErrUnexpected(detail string, err error) *Error {
	return &Error{Kind: KindUnexpected, Detail: detail, Err: err}
}
