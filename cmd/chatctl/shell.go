package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	chat "github.com/NeboLoop/chat-go-sdk"
	"github.com/NeboLoop/chat-go-sdk/conversation"
	"github.com/NeboLoop/chat-go-sdk/event"
	"github.com/NeboLoop/chat-go-sdk/wire"
)

const historyPageSize = 50

var errQuit = errors.New("quit")

// command is one parsed input line.
type command struct {
	name string
	args []string
	text string // trailing free text for /dm and /group
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, fmt.Errorf("commands start with /")
	}
	fields := strings.Fields(line)
	cmd := command{name: strings.TrimPrefix(fields[0], "/")}

	switch cmd.name {
	case "dm", "group":
		if len(fields) < 3 {
			return command{}, fmt.Errorf("usage: /%s <id> <text>", cmd.name)
		}
		cmd.args = fields[1:2]
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		cmd.text = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
	case "history":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: /history <direct:user|group:id>")
		}
		cmd.args = fields[1:]
	case "partners", "groups", "quit":
	default:
		return command{}, fmt.Errorf("unknown command /%s", cmd.name)
	}
	return cmd, nil
}

// shell reads commands and prints conversation activity.
type shell struct {
	in     io.Reader
	out    io.Writer
	client *chat.Client
	api    *chat.APIClient
	conv   *conversation.Reconciler
	logger *slog.Logger

	outMu sync.Mutex
}

func newShell(in io.Reader, out io.Writer, client *chat.Client, cache conversation.Store, logger *slog.Logger) *shell {
	sh := &shell{in: in, out: out, client: client, logger: logger}
	sh.conv = conversation.New(client, cache,
		conversation.WithLogger(logger),
		conversation.WithActiveHook(sh.showMessage),
	)
	return sh
}

// watch prints lifecycle events and feeds pushes into the reconciler.
func (sh *shell) watch(d *event.Dispatcher) func() {
	offs := []func(){
		sh.conv.Attach(d),
		event.On(d, func(e event.StatusChanged) { sh.printf("* %s\n", e.Status) }),
		event.On(d, func(e event.AuthFailed) { sh.printf("! auth failed: %s\n", e.Message) }),
		event.On(d, func(e event.ConnectionFailed) {
			sh.printf("! gave up after %d attempts, restart to reconnect\n", e.Attempts)
		}),
		event.On(d, func(e event.DirectMessage) {
			if conversation.KeyFor(e.Message, sh.client.UserID()) != sh.conv.Active() {
				sh.printf("[dm %s] %s\n", e.Message.SenderID, e.Message.Content)
			}
		}),
		event.On(d, func(e event.GroupMessage) {
			if conversation.GroupKey(e.Message.GroupID) != sh.conv.Active() {
				sh.printf("[group %s] %s: %s\n", e.Message.GroupID, e.Message.SenderID, e.Message.Content)
			}
		}),
		event.On(d, func(e event.UserStatus) { sh.printf("* %s is %s\n", e.Status.UserID, e.Status.Status) }),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (sh *shell) showMessage(key conversation.Key, m conversation.Message) {
	sh.printf("[%s] %s: %s\n", key, m.SenderID, m.Content)
}

func (sh *shell) printf(format string, args ...any) {
	sh.outMu.Lock()
	defer sh.outMu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

// loop runs until /quit, end of input or ctx is cancelled.
func (sh *shell) loop(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(sh.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			err := sh.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				sh.printf("! %v\n", err)
			}
		}
	}
}

func (sh *shell) exec(ctx context.Context, line string) error {
	cmd, err := parseCommand(line)
	if err != nil {
		return err
	}

	switch cmd.name {
	case "quit":
		return errQuit
	case "dm":
		sh.conv.SetActive(conversation.DirectKey(cmd.args[0]))
		_, err := sh.conv.SendDirect(ctx, cmd.args[0], cmd.text)
		return err
	case "group":
		sh.conv.SetActive(conversation.GroupKey(cmd.args[0]))
		_, err := sh.conv.SendGroup(ctx, cmd.args[0], cmd.text)
		return err
	case "history":
		key := conversation.Key(cmd.args[0])
		if key.ID() == "" {
			return fmt.Errorf("bad conversation %q", cmd.args[0])
		}
		sh.conv.SetActive(key)
		msgs, err := sh.conv.LoadHistory(ctx, key, wire.Page{Limit: historyPageSize})
		if err != nil {
			return err
		}
		for _, m := range msgs {
			mark := ""
			if m.IsPending {
				mark = " (pending)"
			}
			sh.printf("%s %s: %s%s\n", m.CreatedAt.Format("15:04"), m.SenderID, m.Content, mark)
		}
		return nil
	case "partners":
		if sh.api == nil {
			return fmt.Errorf("rest api unavailable")
		}
		partners, err := sh.api.ListPartners(ctx)
		if err != nil {
			return err
		}
		for _, p := range partners {
			sh.printf("%s %s unread=%d\n", p.UserID, p.DisplayName, p.UnreadCount)
		}
		return nil
	case "groups":
		if sh.api == nil {
			return fmt.Errorf("rest api unavailable")
		}
		groups, err := sh.api.ListGroups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			sh.printf("%s %s members=%d unread=%d\n", g.ID, g.Name, len(g.MemberIDs), g.UnreadCount)
		}
		return nil
	}
	return nil
}
