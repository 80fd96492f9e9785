package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	println(args ...any)

	Source(ctx context.Context, path string) error
	Prompt(ctx context.Context, text string) error
	Generate(ctx context.Context) error
	Create(ctx context.Context) error
	Status(ctx context.Context) error
	Save(ctx context.Context) error
	Reset(ctx context.Context) error

	History(ctx context.Context) error
	Show(ctx context.Context, id, path string) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error

	Plan(ctx context.Context) error
	Buy(ctx context.Context, tier string) error
	Restore(ctx context.Context) error
}

const helpText = `Available commands:
  source <path>       pick the image to transform
  prompt [text]       set the prompt (asks for it when omitted)
  generate            transform the source image with the prompt
  create              generate from the prompt alone
  status              show the current generation
  save                save the generated image to the photo library
  reset               start over with a new generation
  history             list past generations
  show <id> [path]    show a past generation, optionally exporting it
  delete <id>         remove a past generation
  clear               remove all past generations
  plan                show the current plan and free generations left
  buy <tier>          upgrade to monthly, yearly or lifetime
  restore             restore earlier purchases
  exit | quit         leave the program`

// runREPL starts a simple read-eval-print loop for the artforge CLI.
//
// It reads a line from reader, parses the first token as the command and
// dispatches to methods on a. The rest of the line is passed as the argument
// where a command takes free text (prompt), otherwise it is split into fields.
// The loop exits on EOF, on ctx cancellation or when the user types "exit"
// or "quit".
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.println(fmt.Sprintf("af [%s]> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}

		cmd, rest := splitCommand(line)
		if cmd == "" {
			continue
		}
		args := strings.Fields(rest)

		var cmdErr error
		switch cmd {
		case "help", "?":
			a.println(helpText)

		case "source":
			cmdErr = a.Source(ctx, rest)

		case "prompt":
			cmdErr = a.Prompt(ctx, rest)

		case "generate", "g":
			cmdErr = a.Generate(ctx)

		case "create":
			cmdErr = a.Create(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "save":
			cmdErr = a.Save(ctx)

		case "reset":
			cmdErr = a.Reset(ctx)

		case "history", "h":
			cmdErr = a.History(ctx)

		case "show":
			cmdErr = a.Show(ctx, arg(args, 0), arg(args, 1))

		case "delete", "rm":
			cmdErr = a.Delete(ctx, arg(args, 0))

		case "clear":
			cmdErr = a.Clear(ctx)

		case "plan":
			cmdErr = a.Plan(ctx)

		case "buy":
			cmdErr = a.Buy(ctx, arg(args, 0))

		case "restore":
			cmdErr = a.Restore(ctx)

		case "exit", "quit":
			a.println("Bye!")
			return

		default:
			a.println("Unknown command:", cmd)
		}

		if cmdErr != nil {
			a.println("Error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}

// splitCommand returns the lower-cased first word of line and the trimmed remainder.
func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	cmd, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
