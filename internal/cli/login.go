package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errUnexpectedState = errors.New("unexpected flow state")

func newLoginCommand(v *viper.Viper) *cobra.Command {
	var (
		username string
		factor   string
		mfa      string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a password, one-time code or out-of-band factor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolveConfig(v)
			if err != nil {
				return err
			}
			b, err := cfg.Builder(slog.Default())
			if err != nil {
				return err
			}
			f, err := b.Build()
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			prompter := newTerminalPrompter(os.Stdin, cmd.ErrOrStderr())
			if username == "" {
				if username, err = prompter.Line("Username: "); err != nil {
					return err
				}
			}

			l := &loginRunner{
				flow:     f,
				prompter: prompter,
				out:      cmd.ErrOrStderr(),
				spinner:  true,
			}
			auth, err := l.run(ctx, username, factor, mfa)
			if err != nil {
				return err
			}
			return renderToken(cmd.OutOrStdout(), auth.Token, time.Now())
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "login hint (prompted when empty)")
	cmd.Flags().StringVar(&factor, "factor", "password", "primary factor: password, otp, push, sms or voice")
	cmd.Flags().StringVar(&mfa, "mfa", "otp", "second factor when MFA is required: otp, push, sms or voice")
	return cmd
}

type loginRunner struct {
	flow     *directauth.Flow
	prompter Prompter
	out      io.Writer
	spinner  bool
	// sleep overrides the polling sleep.
	sleep func(context.Context, time.Duration) error
}

func (l *loginRunner) run(ctx context.Context, username, factor, mfa string) (*directauth.Authenticated, error) {
	primary, err := l.primaryFactor(factor)
	if err != nil {
		return nil, err
	}
	state := l.flow.Start(ctx, username, primary)

	for {
		switch s := state.(type) {
		case *directauth.Authenticated:
			return s, nil
		case *directauth.MfaRequired:
			slog.Info("additional verification required", "factor", mfa)
			secondary, err := l.secondaryFactor(mfa)
			if err != nil {
				return nil, err
			}
			state = l.flow.Resume(ctx, s, secondary)
		case *directauth.Prompt:
			code, err := l.prompter.Line(promptLabel(s))
			if err != nil {
				return nil, err
			}
			state = l.flow.ProceedPrompt(ctx, s, code)
		case *directauth.Transfer:
			fmt.Fprintf(l.out, "Select %s on your device to approve the sign-in.\n", s.Binding().BindingCode)
			state = l.poll(ctx, s)
		case *directauth.OobPending:
			fmt.Fprintf(l.out, "Approve the %s notification on your device.\n", s.Binding().Channel)
			state = l.poll(ctx, s)
		case *directauth.Canceled:
			return nil, context.Canceled
		case directauth.ErrorState:
			return nil, s
		default:
			return nil, fmt.Errorf("%w: %s", errUnexpectedState, state.Kind())
		}
	}
}

func (l *loginRunner) poll(ctx context.Context, c directauth.Continuation) directauth.State {
	if l.spinner {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(l.out))
		s.Suffix = " Waiting for approval..."
		s.Start()
		defer s.Stop()
	}
	return directauth.PollUntilDone(ctx, l.flow, c, directauth.PollOptions{
		Sleep: l.sleep,
		OnPending: func(*directauth.AuthorizationPending) {
			slog.Debug("authorization pending")
		},
	})
}

func (l *loginRunner) primaryFactor(name string) (directauth.PrimaryFactor, error) {
	switch strings.ToLower(name) {
	case "password", "":
		pw, err := l.prompter.Secret("Password: ")
		if err != nil {
			return nil, err
		}
		return directauth.Password{Password: pw}, nil
	case "otp":
		code, err := l.prompter.Line("One-time code: ")
		if err != nil {
			return nil, err
		}
		return directauth.Otp{PassCode: code}, nil
	}
	channel, ok := directauth.ParseOobChannel(name)
	if !ok {
		return nil, fmt.Errorf("unknown factor %q", name)
	}
	return directauth.Oob{Channel: channel}, nil
}

func (l *loginRunner) secondaryFactor(name string) (directauth.SecondaryFactor, error) {
	if strings.EqualFold(name, "otp") {
		code, err := l.prompter.Line("One-time code: ")
		if err != nil {
			return nil, err
		}
		return directauth.Otp{PassCode: code}, nil
	}
	channel, ok := directauth.ParseOobChannel(name)
	if !ok {
		return nil, fmt.Errorf("unknown mfa factor %q", name)
	}
	return directauth.Oob{Channel: channel}, nil
}

func promptLabel(p *directauth.Prompt) string {
	if ct := p.Binding().ChallengeType; ct != nil && *ct == directauth.ChallengeOtpMfa {
		return "One-time code: "
	}
	return fmt.Sprintf("Code sent by %s: ", p.Binding().Channel)
}
