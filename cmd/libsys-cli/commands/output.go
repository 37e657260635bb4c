package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"webopac/cmd/libsys-cli/globals"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// render prints the envelope as json with --json, otherwise hands the payload
// to show. Results without a payload exit with status 1 either way.
func render[T any](cmd *cobra.Command, result libsys.Result[T], show func(data T)) {
	g := globals.Get(cmd.Context())
	if g.Json {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		exitOn(encoder.Encode(result))
		if !result.OK() {
			os.Exit(1)
		}
		return
	}
	if !result.OK() {
		fmt.Fprintf(os.Stderr, "%d %s\n", result.Code, result.Message)
		os.Exit(1)
	}
	show(*result.Data)
}

// resolveAccount is the --account flag, or the only stored account.
func resolveAccount(ctx context.Context, g *globals.Value) (string, error) {
	if g.Account != "" {
		return g.Account, nil
	}
	entries, err := g.Store.List(ctx)
	if err != nil {
		return "", err
	}
	switch len(entries) {
	case 0:
		return "", fmt.Errorf("no stored session, run login first")
	case 1:
		return entries[0].Account, nil
	}
	return "", fmt.Errorf("%d sessions are stored, choose one with --account", len(entries))
}

func storedSession(ctx context.Context, g *globals.Value) (string, libsys.Session, error) {
	account, err := resolveAccount(ctx, g)
	if err != nil {
		return "", libsys.Session{}, err
	}
	entry, err := g.Store.Load(ctx, account)
	if errors.Is(err, sessionstore.ErrNotFound) {
		return "", libsys.Session{}, fmt.Errorf("no stored session for %s, run login first", account)
	}
	if err != nil {
		return "", libsys.Session{}, err
	}
	return account, entry.Session, nil
}

// withSession runs a call with the stored session, forgetting it when the
// portal says it has expired.
func withSession[T any](cmd *cobra.Command, call func(ctx context.Context, session libsys.Session) libsys.Result[T]) libsys.Result[T] {
	ctx := cmd.Context()
	g := globals.Get(ctx)

	account, session, err := storedSession(ctx, g)
	exitOn(err)

	result := call(ctx, session)
	if result.Code == libsys.CodeSessionExpired {
		exitOn(g.Store.Delete(ctx, account))
	}
	return result
}
