package site

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/applybot/internal/driver"
)

const (
	loginFormWait     = 3 * time.Second
	loginPollInterval = 20 * time.Second
)

// Authenticator signs in with a login name. The site sends a one-time code,
// so the operator finishes the login in the browser while Login polls.
type Authenticator struct {
	*Browser
	login        string
	pollInterval time.Duration
}

// NewAuthenticator creates an Authenticator for the given login.
func NewAuthenticator(b *Browser, login string) *Authenticator {
	return &Authenticator{Browser: b, login: login, pollInterval: loginPollInterval}
}

// Login reuses an existing session when the account menu is present and
// otherwise starts the login flow and waits until it completes or ctx ends.
func (a *Authenticator) Login(ctx context.Context) error {
	if err := a.d.NavigateTo(ctx, a.url("paths.home")); err != nil {
		return fmt.Errorf("opening home page: %w", err)
	}
	if ok, err := a.loggedIn(ctx); err != nil {
		return err
	} else if ok {
		a.logger.Info("already logged in, skipping login")
		return nil
	}

	a.logger.Info("not logged in, starting login", "login", a.login)
	if err := a.click(ctx, "login.open"); err != nil {
		return fmt.Errorf("opening login form: %w", err)
	}
	input := a.sel.Get("login.input")
	if err := driver.WaitFor(ctx, a.d, input, loginFormWait, loginFormWait/10); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := a.d.Type(ctx, input, a.login); err != nil {
		return fmt.Errorf("entering login: %w", err)
	}
	if err := a.click(ctx, "login.submit"); err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}

	for {
		done, err := a.exists(ctx, "login.done")
		if err != nil {
			return err
		}
		if done {
			a.logger.Info("login completed")
			return nil
		}
		a.logger.Info("waiting for login to be completed in the browser")
		t := time.NewTimer(a.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (a *Authenticator) loggedIn(ctx context.Context) (bool, error) {
	for _, key := range []string{"session.resumes_menu", "session.profile_menu"} {
		ok, err := a.exists(ctx, key)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
