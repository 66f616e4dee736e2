package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"liveAgent/internal/app"
	"liveAgent/internal/cli/ui"
	"liveAgent/internal/database"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

// Control - операции приложения, доступные из консоли.
type Control interface {
	Accounts() []app.AccountView
	Account(id string) (app.AccountView, error)
	CreateAccount(ctx context.Context, name platform.Name, acc session.Account) (app.AccountView, error)
	RemoveAccount(ctx context.Context, id string) error
	Connect(ctx context.Context, id string, cfg session.ConnectConfig) (session.ConnectResult, error)
	Disconnect(id string) error
	StartTask(ctx context.Context, id string, d task.Descriptor) error
	StopTask(id string, typ task.Type) error
	UpdateTask(id string, typ task.Type, partial json.RawMessage) error
	Runs(ctx context.Context, id string, limit int) ([]database.TaskRun, error)
	Comments(id string, n int) []listener.LiveMessage
}

// AccountHandler обрабатывает команды аккаунтов и подключения
type AccountHandler struct {
	ctl Control
	log *zap.Logger
	out io.Writer
}

func NewAccountHandler(ctl Control, log *zap.Logger, out io.Writer) *AccountHandler {
	return &AccountHandler{ctl: ctl, log: log, out: out}
}

// Platforms выводит поддерживаемые платформы
func (h *AccountHandler) Platforms() {
	fmt.Fprintln(h.out, "\n"+ui.ColorBold+ui.IconGlobe+" Платформы:"+ui.ColorReset)
	for _, n := range platform.All {
		fmt.Fprintf(h.out, "  "+ui.ColorGreen+"%-12s"+ui.ColorReset+" %s\n", n, n.Title())
	}
	fmt.Fprintln(h.out)
}

// List выводит аккаунты и их задачи
func (h *AccountHandler) List() {
	views := h.ctl.Accounts()
	if len(views) == 0 {
		fmt.Fprintln(h.out, ui.ColorGray+"Аккаунтов нет, заведите командой add"+ui.ColorReset)
		return
	}

	fmt.Fprintln(h.out, "\n"+ui.ColorBold+ui.IconList+" Аккаунты:"+ui.ColorReset)
	fmt.Fprintln(h.out)
	for _, v := range views {
		icon, color, text := ui.FormatConnected(v.Connected)
		fmt.Fprintf(h.out, "  "+ui.ColorBold+"%s"+ui.ColorReset+" %s (%s) %s%s %s"+ui.ColorReset+"\n",
			v.ID, v.Name, v.Title, color, icon, text)
		if v.AccountName != "" {
			fmt.Fprintf(h.out, "  "+ui.ColorGray+"├─"+ui.ColorReset+" "+ui.IconUser+" %s\n", v.AccountName)
		}
		tasks := "нет"
		if len(v.Tasks) > 0 {
			tasks = fmt.Sprint(v.Tasks)
		}
		fmt.Fprintf(h.out, "  "+ui.ColorGray+"└─"+ui.ColorReset+" задачи: %s\n", tasks)
		fmt.Fprintln(h.out)
	}
}

// Add заводит аккаунт: add <платформа> <id> [имя]
func (h *AccountHandler) Add(ctx context.Context, args []string) {
	if len(args) < 2 {
		ui.Errorf(h.out, "Использование: add <платформа> <id> [имя]")
		return
	}
	name, err := platform.ParseName(args[0])
	if err != nil {
		ui.Error(h.out, err)
		return
	}
	acc := session.Account{ID: args[1], Name: args[1]}
	if len(args) > 2 {
		acc.Name = args[2]
	}

	v, err := h.ctl.CreateAccount(ctx, name, acc)
	if err != nil {
		ui.Error(h.out, err)
		return
	}
	ui.Success(h.out, "Аккаунт %s заведён на платформе %s", v.ID, v.Title)
}

func (h *AccountHandler) Remove(ctx context.Context, args []string) {
	if len(args) < 1 {
		ui.Errorf(h.out, "Использование: remove <id>")
		return
	}
	if err := h.ctl.RemoveAccount(ctx, args[0]); err != nil {
		ui.Error(h.out, err)
		return
	}
	ui.Success(h.out, "Аккаунт %s удалён", args[0])
}

// Connect открывает панель: connect <id> [headless]
func (h *AccountHandler) Connect(ctx context.Context, args []string, headlessDefault bool) {
	if len(args) < 1 {
		ui.Errorf(h.out, "Использование: connect <id> [headless]")
		return
	}
	cfg := session.ConnectConfig{Headless: headlessDefault}
	if len(args) > 1 && args[1] == "headless" {
		cfg.Headless = true
	}

	fmt.Fprintf(h.out, ui.ColorCyan+ui.IconPlay+" Подключение %s..."+ui.ColorReset+"\n", args[0])
	res, err := h.ctl.Connect(ctx, args[0], cfg)
	if err != nil {
		h.log.Warn("Подключение не удалось", zap.String("account_id", args[0]), zap.Error(err))
		ui.Error(h.out, err)
		return
	}
	ui.Success(h.out, "Подключено: %s", res.AccountName)
}

func (h *AccountHandler) Disconnect(args []string) {
	if len(args) < 1 {
		ui.Errorf(h.out, "Использование: disconnect <id>")
		return
	}
	if err := h.ctl.Disconnect(args[0]); err != nil {
		ui.Error(h.out, err)
		return
	}
	ui.Success(h.out, "Аккаунт %s отключён", args[0])
}
