package ui

import (
	"fmt"
	"io"
	"os"
)

// PrintWelcome выводит приветствие и лого
func PrintWelcome(w io.Writer) {
	logoBytes, err := os.ReadFile("logo.txt")
	if err == nil {
		fmt.Fprintln(w, ColorCyan+string(logoBytes)+ColorReset)
	}
	fmt.Fprintln(w, ColorBold+IconTV+" Live Agent"+ColorReset)
	fmt.Fprintln(w, ColorGray+"Автоматизация панелей прямых трансляций"+ColorReset)
	fmt.Fprintln(w, ColorGray+"Используется: Chromium + Playwright"+ColorReset)
	fmt.Fprintln(w)
	PrintHelp(w)
	fmt.Fprintln(w, ColorCyan+IconBulb+" Совет:"+ColorReset+" пресеты задач лежат в YAML, например "+ColorYellow+"start acc1 presets/popup.yaml"+ColorReset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, ColorGray+"⬆️ ⬇️"+ColorReset+" Используйте стрелки для навигации по истории команд")
	fmt.Fprintln(w)
}

// PrintHelp выводит список доступных команд
func PrintHelp(w io.Writer) {
	fmt.Fprintln(w, ColorYellow+IconList+" Доступные команды:"+ColorReset)
	fmt.Fprintln(w, "  "+ColorGreen+"platforms"+ColorReset+"                     - Поддерживаемые платформы")
	fmt.Fprintln(w, "  "+ColorGreen+"accounts"+ColorReset+"                      - Список аккаунтов")
	fmt.Fprintln(w, "  "+ColorGreen+"add"+ColorReset+" <платформа> <id> [имя]     - Завести аккаунт")
	fmt.Fprintln(w, "  "+ColorGreen+"remove"+ColorReset+" <id>                   - Удалить аккаунт")
	fmt.Fprintln(w, "  "+ColorGreen+"connect"+ColorReset+" <id> [headless]       - Открыть панель и войти")
	fmt.Fprintln(w, "  "+ColorGreen+"disconnect"+ColorReset+" <id>               - Закрыть браузер аккаунта")
	fmt.Fprintln(w, "  "+ColorGreen+"start"+ColorReset+" <id> <файл.yaml>        - Запустить задачу из пресета")
	fmt.Fprintln(w, "  "+ColorGreen+"stop"+ColorReset+" <id> <тип>               - Остановить задачу")
	fmt.Fprintln(w, "  "+ColorGreen+"update"+ColorReset+" <id> <тип> <json>      - Изменить конфигурацию задачи")
	fmt.Fprintln(w, "  "+ColorGreen+"runs"+ColorReset+" <id>                     - История запусков")
	fmt.Fprintln(w, "  "+ColorGreen+"comments"+ColorReset+" <id> [n]             - Последние сообщения чата")
	fmt.Fprintln(w, "  "+ColorGreen+"clear"+ColorReset+"                         - Очистить экран")
	fmt.Fprintln(w, "  "+ColorGreen+"exit"+ColorReset+"                          - Выход")
	fmt.Fprintln(w)
}
