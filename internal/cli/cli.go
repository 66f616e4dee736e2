package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"liveAgent/internal/cli/commands"
	"liveAgent/internal/cli/ui"
	"liveAgent/internal/logger"

	"github.com/chzyer/readline"
)

type CLI struct {
	log            *logger.Zap
	out            io.Writer
	headless       bool
	rl             *readline.Instance
	fallback       *bufio.Reader
	accountHandler *commands.AccountHandler
	taskHandler    *commands.TaskHandler
}

// New создаёт консоль. headless - режим браузера по умолчанию для connect.
func New(ctl commands.Control, log *logger.Zap, headless bool) *CLI {
	cli := &CLI{
		log:      log,
		out:      os.Stdout,
		headless: headless,
	}

	// Инициализация handlers
	cli.accountHandler = commands.NewAccountHandler(ctl, log.Logger, cli.out)
	cli.taskHandler = commands.NewTaskHandler(ctl, log.Logger, cli.out)

	// Инициализация readline
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     ".live-agent-history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		log.Warn("Не удалось инициализировать readline, будет использован fallback режим")
		cli.fallback = bufio.NewReader(os.Stdin)
	} else {
		cli.rl = rl
	}

	return cli
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("platforms"),
		readline.PcItem("accounts"),
		readline.PcItem("add"),
		readline.PcItem("remove"),
		readline.PcItem("connect"),
		readline.PcItem("disconnect"),
		readline.PcItem("start"),
		readline.PcItem("stop"),
		readline.PcItem("update"),
		readline.PcItem("runs"),
		readline.PcItem("comments"),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func (c *CLI) readLine() (string, error) {
	if c.rl != nil {
		return c.rl.Readline()
	}
	// Fallback для работы без readline
	fmt.Fprint(c.out, ui.ColorCyan+"> "+ui.ColorReset)
	line, err := c.fallback.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *CLI) closeReadline() {
	if c.rl != nil {
		c.rl.Close()
	}
}

// Run читает команды до exit, EOF или отмены ctx.
func (c *CLI) Run(ctx context.Context) {
	ui.PrintWelcome(c.out)
	defer c.closeReadline()

	for {
		// Проверка отмены контекста
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "\n"+ui.ColorCyan+ui.IconWave+" Получен сигнал завершения..."+ui.ColorReset)
			return
		default:
		}

		line, err := c.readLine()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !c.handleCommand(ctx, line) {
			return
		}
	}
}

// handleCommand возвращает false, когда консоль пора закрыть.
func (c *CLI) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		fmt.Fprintln(c.out, ui.ColorCyan+ui.IconWave+" До свидания!"+ui.ColorReset)
		return false

	case "clear":
		ui.ClearScreen(c.out)

	case "platforms":
		c.accountHandler.Platforms()

	case "accounts":
		c.accountHandler.List()

	case "add":
		c.accountHandler.Add(ctx, args)

	case "remove":
		c.accountHandler.Remove(ctx, args)

	case "connect":
		c.accountHandler.Connect(ctx, args, c.headless)

	case "disconnect":
		c.accountHandler.Disconnect(args)

	case "start":
		c.taskHandler.Start(ctx, args)

	case "stop":
		c.taskHandler.Stop(args)

	case "update":
		c.taskHandler.Update(args)

	case "runs":
		c.taskHandler.Runs(ctx, args)

	case "comments":
		c.taskHandler.Comments(args)

	default:
		ui.PrintHelp(c.out)
	}
	return true
}
