package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errPasswordMismatch = errors.New("passwords do not match")

// Signup prompts for an email, a password (twice) and an optional display
// name, and creates a local account. It does not log in.
func (a *App) Signup(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if string(password) != string(confirm) {
		return errPasswordMismatch
	}

	name, err := getSimpleText(a.reader, "Display name (optional)", a.out)
	if err != nil {
		return err
	}

	id, err := a.authService.Signup(ctx, email, password, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Account %d created, you can log in now\n", id)
	return nil
}

// Login prompts for credentials and stores the session on success.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Login(ctx, email, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Google signs in with a Google ID token, taken from args or prompted for.
func (a *App) Google(ctx context.Context, args []string) error {
	var assertion string
	if len(args) > 0 {
		assertion = args[0]
	} else {
		var err error
		if assertion, err = getSimpleText(a.reader, "Paste Google ID token", a.out); err != nil {
			return err
		}
	}

	if err := a.authService.GoogleLogin(ctx, assertion); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Login successful")
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.authService.Refresh(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Tokens refreshed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// ChangePassword asks for the current and the new password. The session
// ends with the old password, so the user has to log in again.
func (a *App) ChangePassword(ctx context.Context) error {
	current, err := getPassword(a.out, "Current password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	next, err := getPassword(a.out, "New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	confirm, err := getPassword(a.out, "Repeat new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if string(next) != string(confirm) {
		return errPasswordMismatch
	}

	if err := a.authService.ChangePassword(ctx, current, next); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Password changed, please log in again")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	s, err := a.authService.Status(ctx)
	if err != nil {
		return err
	}
	if s.Empty() {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	fmt.Fprintf(a.out, "Logged in as %s since %s\n", s.Email, s.SavedAt.Local().Format(time.DateTime))
	return nil
}
