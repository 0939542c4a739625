package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/internal/mockserver"
	"github.com/spf13/cobra"
)

type mockServerOptions struct {
	addr        string
	caOut       string
	clientID    string
	username    string
	password    string
	mfa         bool
	transfer    bool
	autoApprove int
}

func newMockServerCommand() *cobra.Command {
	opts := mockServerOptions{}

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory Direct-Auth server for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newMockServer(opts, cmd)
			if err != nil {
				return err
			}

			cert, caPEM, err := selfSignedCertificate(certificateHosts(opts.addr), time.Now())
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.caOut, caPEM, 0o644); err != nil {
				return fmt.Errorf("write ca file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "issuer https://%s, trust it with --ca-file %s\n", opts.addr, opts.caOut)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, opts.addr, srv.Handler(), cert)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "127.0.0.1:9090", "listen address")
	flags.StringVar(&opts.caOut, "ca-out", filepath.Join(os.TempDir(), "directauth-mock-ca.pem"), "where to write the self-signed certificate")
	flags.StringVar(&opts.clientID, "client-id", "mock-client", "accepted client id")
	flags.StringVar(&opts.username, "user", "user@example.com", "username of the seeded account")
	flags.StringVar(&opts.password, "password", "password", "password of the seeded account")
	flags.BoolVar(&opts.mfa, "mfa", false, "require a second factor after the password")
	flags.BoolVar(&opts.transfer, "transfer", false, "use transfer binding for push challenges")
	flags.IntVar(&opts.autoApprove, "auto-approve", 2, "approve pushes after this many polls (0 never)")
	return cmd
}

func newMockServer(opts mockServerOptions, cmd *cobra.Command) (*mockserver.Server, error) {
	out := cmd.OutOrStdout()
	srv := mockserver.New(mockserver.Config{
		ClientID:         opts.clientID,
		AutoApproveAfter: opts.autoApprove,
		Logger:           slog.Default(),
		OnDelivery: func(d mockserver.Delivery) {
			switch {
			case d.Code != "":
				fmt.Fprintf(out, "[device] %s code for %s: %s\n", d.Channel, d.Username, d.Code)
			case d.BindingCode != "":
				fmt.Fprintf(out, "[device] push for %s, pick %s\n", d.Username, d.BindingCode)
			default:
				fmt.Fprintf(out, "[device] push for %s\n", d.Username)
			}
		},
	})

	userOpts := []mockserver.UserOption{}
	if opts.mfa {
		userOpts = append(userOpts, mockserver.WithMFA())
	}
	if opts.transfer {
		userOpts = append(userOpts, mockserver.WithPushBinding(directauth.BindingTransfer))
	}
	if err := srv.AddUser(opts.username, opts.password, userOpts...); err != nil {
		return nil, err
	}
	secret, err := srv.EnrollTOTP(opts.username)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "user %s enrolled with TOTP secret %s\n", opts.username, secret)
	return srv, nil
}

func serve(ctx context.Context, addr string, h http.Handler, cert tls.Certificate) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mock server listening", "addr", addr)
		errCh <- server.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
