package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/dudaji/dudaji-chat/internal/handlers/dto"
	"github.com/dudaji/dudaji-chat/internal/session"
)

func (a *app) saveSession(resp *dto.AuthResponse) error {
	sess := &session.Session{
		Server:      a.client.BaseURL(),
		UID:         resp.UID,
		DisplayName: resp.DisplayName,
		Email:       resp.Email,
		Token:       resp.Token,
	}
	if exp, err := time.Parse(time.RFC3339, resp.TokenExpiresAt); err == nil {
		sess.ExpiresAt = exp.UnixMilli()
	}
	if err := a.store.Save(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	a.session = sess
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", resp.Email, resp.UID)
	return nil
}

func credentialFlags(name string) (*pflag.FlagSet, *string, *string) {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	email := flagSet.String("email", "", "account email")
	password := flagSet.String("password", os.Getenv("DUDAJI_PASSWORD"), "account password (or $DUDAJI_PASSWORD)")
	return flagSet, email, password
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	flagSet, email, password := credentialFlags("register")
	name := flagSet.String("name", "", "display name")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	resp, err := a.client.Register(ctx, *email, *password, *name)
	if err != nil {
		return err
	}
	return a.saveSession(resp)
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	flagSet, email, password := credentialFlags("login")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	resp, err := a.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return a.saveSession(resp)
}

// cmdLogout отзывает токен на сервере и удаляет локальную сессию даже
// если сервер недоступен.
func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if a.session == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	if err := a.client.Logout(ctx); err != nil {
		fmt.Fprintf(a.out, "Server logout failed: %v\n", err)
	}
	if err := a.store.Clear(); err != nil {
		return err
	}
	a.session = nil
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, _ []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	name := a.session.DisplayName
	if name == "" {
		name = a.session.Email
	}
	fmt.Fprintf(a.out, "%s <%s>\nuid: %s\nserver: %s\n", name, a.session.Email, a.session.UID, a.session.Server)
	return nil
}

func cmdRooms(ctx context.Context, a *app, _ []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rooms, err := a.client.ListRooms(ctx)
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tMEMBERS\tONLINE\tLAST MESSAGE")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Name, r.Role, r.MemberCount, r.OnlineCount, r.LastMessage)
	}
	return tw.Flush()
}

func cmdCreateRoom(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	name := joinArgs(args)
	if name == "" {
		return fmt.Errorf("usage: dudaji %s", usages["create-room"])
	}
	id, err := a.client.CreateRoom(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created room %s\n", id)
	return nil
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rooms, err := a.client.SearchRooms(ctx, joinArgs(args))
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tNAME\tMEMBERS")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.ID, r.Name, r.MemberCount)
	}
	return tw.Flush()
}

func cmdRequestJoin(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	flagSet := pflag.NewFlagSet("request-join", pflag.ContinueOnError)
	message := flagSet.String("message", "", "note for the room admins")
	rest, err := positional(flagSet, args, 1, usages["request-join"])
	if err != nil {
		return err
	}
	if err := a.client.RequestJoin(ctx, rest[0], *message); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Join request sent")
	return nil
}

func cmdRequests(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rest, err := positional(pflag.NewFlagSet("requests", pflag.ContinueOnError), args, 1, usages["requests"])
	if err != nil {
		return err
	}
	requests, err := a.client.JoinRequests(ctx, rest[0])
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "UID\tNAME\tEMAIL\tREQUESTED\tMESSAGE")
	for _, r := range requests {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.UID, r.DisplayName, r.Email, formatMillis(r.RequestedAt), r.Message)
	}
	return tw.Flush()
}

func cmdApprove(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rest, err := positional(pflag.NewFlagSet("approve", pflag.ContinueOnError), args, 2, usages["approve"])
	if err != nil {
		return err
	}
	if err := a.client.Approve(ctx, rest[0], rest[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Approved %s\n", rest[1])
	return nil
}

func cmdReject(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rest, err := positional(pflag.NewFlagSet("reject", pflag.ContinueOnError), args, 2, usages["reject"])
	if err != nil {
		return err
	}
	if err := a.client.Reject(ctx, rest[0], rest[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Rejected %s\n", rest[1])
	return nil
}

func cmdMembers(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rest, err := positional(pflag.NewFlagSet("members", pflag.ContinueOnError), args, 1, usages["members"])
	if err != nil {
		return err
	}
	members, err := a.client.Members(ctx, rest[0])
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "UID\tNAME\tROLE\tONLINE\tLAST SEEN")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", m.UID, m.DisplayName, m.Role, m.IsOnline, formatMillis(m.LastSeen))
	}
	return tw.Flush()
}

func cmdLeave(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	rest, err := positional(pflag.NewFlagSet("leave", pflag.ContinueOnError), args, 1, usages["leave"])
	if err != nil {
		return err
	}
	if err := a.client.Leave(ctx, rest[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Left room")
	return nil
}

func cmdSend(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
	file := flagSet.String("file", "", "attach a file instead of text")
	rest, err := positional(flagSet, args, 1, usages["send"])
	if err != nil {
		return err
	}

	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		msg, err := a.client.UploadFile(ctx, rest[0], filepath.Base(*file), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Sent %s: %s\n", msg.FileName, msg.FileURL)
		return nil
	}

	msg, err := a.client.SendMessage(ctx, rest[0], joinArgs(rest[1:]))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Sent %s\n", msg.ID)
	return nil
}

func cmdMessages(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	flagSet := pflag.NewFlagSet("messages", pflag.ContinueOnError)
	limit := flagSet.Int("limit", 50, "show only the last N messages")
	search := flagSet.String("search", "", "show messages containing text, newest first")
	rest, err := positional(flagSet, args, 1, usages["messages"])
	if err != nil {
		return err
	}

	var messages []dto.MessageResponse
	if *search != "" {
		messages, err = a.client.SearchMessages(ctx, rest[0], *search)
	} else {
		messages, err = a.client.Messages(ctx, rest[0], *limit)
	}
	if err != nil {
		return err
	}
	for _, m := range messages {
		body := m.Text
		if m.FileURL != "" {
			body = fmt.Sprintf("[%s] %s", m.FileName, m.FileURL)
		}
		fmt.Fprintf(a.out, "%s  %s: %s\n", formatMillis(m.Timestamp), m.Sender, body)
	}
	return nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
