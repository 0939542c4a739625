package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderToken(w io.Writer, tok *directauth.Token, receivedAt time.Time) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})

	t.AppendRow(table.Row{"token_type", tok.TokenType})
	t.AppendRow(table.Row{"scope", tok.Scope})
	if exp := tok.ExpiresAt(receivedAt); !exp.IsZero() {
		t.AppendRow(table.Row{"expires_at", exp.Format(time.RFC3339)})
	}
	t.AppendRow(table.Row{"access_token", abbreviate(tok.AccessToken)})
	t.AppendRow(table.Row{"refresh_token", present(tok.RefreshToken)})

	if tok.IDToken != "" {
		claims, err := tok.IDTokenClaims()
		if err != nil {
			t.AppendRow(table.Row{"id_token", text.FgRed.Sprint("unreadable")})
		} else {
			t.AppendRow(table.Row{"id_token.sub", fmt.Sprint(claims["sub"])})
			if iss, ok := claims["iss"]; ok {
				t.AppendRow(table.Row{"id_token.iss", fmt.Sprint(iss)})
			}
		}
	}

	t.Render()
	return nil
}

func abbreviate(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:6] + "…" + s[len(s)-4:]
}

func present(s string) string {
	if s == "" {
		return "no"
	}
	return "yes"
}
