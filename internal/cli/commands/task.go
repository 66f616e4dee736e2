package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"liveAgent/internal/cli/ui"
	"liveAgent/internal/task"
)

// TaskHandler обрабатывает команды связанные с задачами
type TaskHandler struct {
	ctl      Control
	log      *zap.Logger
	out      io.Writer
	readFile func(string) ([]byte, error)
}

func NewTaskHandler(ctl Control, log *zap.Logger, out io.Writer) *TaskHandler {
	return &TaskHandler{
		ctl:      ctl,
		log:      log,
		out:      out,
		readFile: os.ReadFile,
	}
}

// Start запускает задачу из YAML-пресета: start <id> <файл>
func (h *TaskHandler) Start(ctx context.Context, args []string) {
	if len(args) < 2 {
		ui.Errorf(h.out, "Использование: start <id> <файл.yaml>")
		return
	}
	data, err := h.readFile(args[1])
	if err != nil {
		ui.Error(h.out, fmt.Errorf("чтение пресета: %w", err))
		return
	}
	d, err := task.ParseDescriptorYAML(data)
	if err != nil {
		ui.Error(h.out, err)
		return
	}

	if err := h.ctl.StartTask(ctx, args[0], d); err != nil {
		h.log.Warn("Задача не запущена", zap.String("account_id", args[0]), zap.String("task", string(d.Type)), zap.Error(err))
		ui.Error(h.out, err)
		return
	}
	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconPlay+" Задача %s запущена для %s"+ui.ColorReset+"\n", d.Type, args[0])
}

// Stop останавливает задачу: stop <id> <тип>
func (h *TaskHandler) Stop(args []string) {
	if len(args) < 2 {
		ui.Errorf(h.out, "Использование: stop <id> <тип>")
		return
	}
	typ, err := task.ParseType(args[1])
	if err != nil {
		ui.Error(h.out, err)
		return
	}
	if err := h.ctl.StopTask(args[0], typ); err != nil {
		ui.Error(h.out, err)
		return
	}
	ui.Success(h.out, "Задача %s остановлена", typ)
}

// Update меняет конфигурацию на лету: update <id> <тип> <json>
func (h *TaskHandler) Update(args []string) {
	if len(args) < 3 {
		ui.Errorf(h.out, "Использование: update <id> <тип> <json>")
		return
	}
	typ, err := task.ParseType(args[1])
	if err != nil {
		ui.Error(h.out, err)
		return
	}
	partial := strings.Join(args[2:], " ")
	if !json.Valid([]byte(partial)) {
		ui.Errorf(h.out, "Конфигурация должна быть JSON-объектом")
		return
	}
	if err := h.ctl.UpdateTask(args[0], typ, json.RawMessage(partial)); err != nil {
		ui.Error(h.out, err)
		return
	}
	ui.Success(h.out, "Конфигурация %s обновлена", typ)
}

// Runs выводит историю запусков аккаунта
func (h *TaskHandler) Runs(ctx context.Context, args []string) {
	if len(args) < 1 {
		ui.Errorf(h.out, "Использование: runs <id>")
		return
	}
	runs, err := h.ctl.Runs(ctx, args[0], 20)
	if err != nil {
		h.log.Error("Ошибка чтения истории", zap.Error(err))
		ui.Error(h.out, err)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(h.out, ui.ColorGray+"История пуста или БД не настроена"+ui.ColorReset)
		return
	}

	fmt.Fprintln(h.out, "\n"+ui.ColorBold+ui.IconList+" Запуски:"+ui.ColorReset)
	for _, r := range runs {
		icon, color, text := ui.FormatRunStatus(r.Status)
		fmt.Fprintf(h.out, "  "+ui.ColorBold+"#%d"+ui.ColorReset+" %s %s%s %s"+ui.ColorReset+"\n", r.ID, r.Type, color, icon, text)
		fmt.Fprintf(h.out, "  "+ui.ColorGray+ui.IconTime+" %s"+ui.ColorReset+"\n", r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.Error != "" {
			fmt.Fprintf(h.out, "  "+ui.ColorRed+"%s"+ui.ColorReset+"\n", r.Error)
		}
	}
	fmt.Fprintln(h.out)
}

// Comments выводит последние сообщения чата: comments <id> [n]
func (h *TaskHandler) Comments(args []string) {
	if len(args) < 1 {
		ui.Errorf(h.out, "Использование: comments <id> [n]")
		return
	}
	if _, err := h.ctl.Account(args[0]); err != nil {
		ui.Error(h.out, err)
		return
	}
	n := 20
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil && v > 0 {
			n = v
		}
	}

	msgs := h.ctl.Comments(args[0], n)
	if len(msgs) == 0 {
		fmt.Fprintln(h.out, ui.ColorGray+"Сообщений пока нет, запустите auto-reply"+ui.ColorReset)
		return
	}
	for _, m := range msgs {
		nick := m.NickName
		if m.Self {
			nick += " (я)"
		}
		fmt.Fprintf(h.out, ui.ColorGray+"%s"+ui.ColorReset+" "+ui.IconChat+" "+ui.ColorCyan+"%s"+ui.ColorReset+" [%s] %s\n",
			m.Time, nick, m.MsgType, m.Content)
	}
}
