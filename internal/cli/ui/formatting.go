package ui

import (
	"fmt"
	"io"
)

// FormatConnected возвращает иконку, цвет и текст для состояния сессии
func FormatConnected(connected bool) (icon, color, text string) {
	if connected {
		return IconCheckmark, ColorGreen, "подключён"
	}
	return IconClock, ColorGray, "не подключён"
}

// FormatRunStatus - то же для записи о запуске задачи
func FormatRunStatus(status string) (icon, color, text string) {
	switch status {
	case "stopped":
		return IconCheckmark, ColorGreen, "остановлена"
	case "failed":
		return IconCross, ColorRed, "ошибка"
	case "running":
		return IconPlay, ColorCyan, "выполняется"
	default:
		return IconClock, ColorYellow, status
	}
}

func Error(w io.Writer, err error) {
	fmt.Fprintf(w, ColorRed+IconCross+" Ошибка:"+ColorReset+" %v\n", err)
}

func Errorf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ColorRed+IconCross+" "+format+ColorReset+"\n", args...)
}

func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ColorGreen+IconCheckmark+" "+format+ColorReset+"\n", args...)
}

// ClearScreen очищает терминал
func ClearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}
