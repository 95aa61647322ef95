// Команда dudaji: консольный клиент чата. Сессия сохраняется между запусками
// в каталоге настроек пользователя.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/dudaji/dudaji-chat/internal/client"
	"github.com/dudaji/dudaji-chat/internal/session"
)

const defaultServer = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	out     io.Writer
	store   *session.Store
	session *session.Session
	client  *client.Client
}

type handler func(ctx context.Context, a *app, args []string) error

// order задает порядок команд в справке.
var order = []string{"register", "login", "logout", "whoami", "rooms", "create-room", "search",
	"request-join", "requests", "approve", "reject", "members", "leave", "send", "messages"}

var usages = map[string]string{
	"register":     "register --email E --password P [--name N]",
	"login":        "login --email E --password P",
	"logout":       "logout",
	"whoami":       "whoami",
	"rooms":        "rooms",
	"create-room":  "create-room NAME",
	"search":       "search QUERY",
	"request-join": "request-join ROOM [--message M]",
	"requests":     "requests ROOM",
	"approve":      "approve ROOM UID",
	"reject":       "reject ROOM UID",
	"members":      "members ROOM",
	"leave":        "leave ROOM",
	"send":         "send ROOM TEXT... | send ROOM --file PATH",
	"messages":     "messages ROOM [--limit N] [--search Q]",
}

var commands = map[string]handler{
	"register":     cmdRegister,
	"login":        cmdLogin,
	"logout":       cmdLogout,
	"whoami":       cmdWhoami,
	"rooms":        cmdRooms,
	"create-room":  cmdCreateRoom,
	"search":       cmdSearch,
	"request-join": cmdRequestJoin,
	"requests":     cmdRequests,
	"approve":      cmdApprove,
	"reject":       cmdReject,
	"members":      cmdMembers,
	"leave":        cmdLeave,
	"send":         cmdSend,
	"messages":     cmdMessages,
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("dudaji", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	server := flagSet.String("server", "", "server URL (default: saved session, $DUDAJI_SERVER or "+defaultServer+")")
	sessionFile := flagSet.String("session-file", "", "session file (default: user config dir)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(out)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		printUsage(out)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	path := *sessionFile
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return err
		}
	}
	a := &app{out: out, store: session.NewStore(path)}

	sess, err := a.store.Load()
	switch {
	case err == nil:
		if sess.Expired(time.Now()) {
			a.store.Clear()
		} else {
			a.session = sess
		}
	case !errors.Is(err, session.ErrNoSession):
		return err
	}

	baseURL := *server
	if baseURL == "" && a.session != nil {
		baseURL = a.session.Server
	}
	if baseURL == "" {
		baseURL = os.Getenv("DUDAJI_SERVER")
	}
	if baseURL == "" {
		baseURL = defaultServer
	}
	if a.client, err = client.New(baseURL, nil); err != nil {
		return err
	}
	if a.session != nil {
		a.client.SetToken(a.session.Token)
	}

	return cmd(ctx, a, rest[1:])
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: dudaji [--server URL] [--session-file PATH] COMMAND")
	fmt.Fprintln(out, "commands:")
	for _, name := range order {
		fmt.Fprintf(out, "  %s\n", usages[name])
	}
}

func (a *app) requireSession() error {
	if a.session == nil {
		return session.ErrNoSession
	}
	return nil
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

// positional разбирает флаги команды и проверяет число аргументов.
func positional(flagSet *pflag.FlagSet, args []string, n int, usage string) ([]string, error) {
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	rest := flagSet.Args()
	if len(rest) < n {
		return nil, fmt.Errorf("usage: dudaji %s", usage)
	}
	return rest, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
