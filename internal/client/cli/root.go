package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var errExit = errors.New("exit")

func (a *App) getStatus(ctx context.Context) string {
	s := ""
	if sess, err := a.authService.Status(ctx); err == nil && !sess.Empty() {
		s = sess.Email + " "
	}
	if m := a.Mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", strings.TrimSpace(s))
	}
	return s
}

// Exec runs one command.
func (a *App) Exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(a.out, "Available commands: signup, login, google <id-token>, refresh, logout, passwd, status, exit")
		return nil
	case "signup", "register":
		return a.Signup(ctx)
	case "login":
		return a.Login(ctx)
	case "google":
		return a.Google(ctx, args)
	case "refresh":
		return a.Refresh(ctx)
	case "logout":
		return a.Logout(ctx)
	case "passwd":
		return a.ChangePassword(ctx)
	case "status":
		return a.Status(ctx)
	case "exit", "quit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// Root runs the interactive shell until EOF or exit.
func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to GophAuth CLI (type 'help' for commands)")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.checkOnline(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	for {
		fmt.Fprintf(a.out, "gophauth %s> ", a.getStatus(ctx))
		line, err := a.reader.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		err = a.Exec(ctx, parts[0], parts[1:])
		if errors.Is(err, errExit) {
			fmt.Fprintln(a.out, "Bye!")
			return
		}
		if err != nil {
			fmt.Fprintln(a.out, "error:", err)
		}
	}
}
