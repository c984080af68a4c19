package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"anoint-auth/internal/app"
	"anoint-auth/internal/autherr"
	"anoint-auth/internal/identity"
	"anoint-auth/internal/session"
)

func replCmd() *cobra.Command {
	var (
		verbose     bool
		sessionFile string
		startPath   string
	)

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Drive a session store interactively",
		Long: `Start an interactive session. The store resolves the current user,
follows auth events and applies the route policy to the current path,
printing every redirect it performs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			access, refresh := readSessionFile(sessionFile)
			client := a.Identity.ClientFromTokens(ctx, access, refresh)
			out := &syncWriter{w: cmd.OutOrStdout()}

			r := newREPL(a, client, startPath, out)
			defer r.store.Dispose()

			if err := r.run(ctx, cmd.InOrStdin()); err != nil {
				return err
			}
			return writeSessionFile(sessionFile, client)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log store and gateway activity")
	cmd.Flags().StringVar(&sessionFile, "session-file", defaultSessionFile(), "Where the token pair is kept between runs")
	cmd.Flags().StringVar(&startPath, "path", "/", "Initial page path")
	return cmd
}

type repl struct {
	store  *session.Store
	client *identity.Client
	nav    *session.PathNavigator
	out    io.Writer
}

func newREPL(a *app.App, client *identity.Client, startPath string, out io.Writer) *repl {
	nav := session.NewPathNavigator(startPath, func(path string) {
		fmt.Fprintf(out, "-> redirected to %s\n", path)
	})
	store := session.New(session.Options{
		Gateway:     a.Gateway(client),
		Navigator:   nav,
		Logger:      a.Logger,
		Metrics:     a.Metrics,
		InitTimeout: a.Config.InitTimeout,
	})
	store.Start(context.Background())
	return &repl{store: store, client: client, nav: nav, out: out}
}

const replHelp = `commands:
  signin <email> <password>
  signup <email> <password> [display name]
  verify <email> <code>
  reset <email>
  recover <email> <code>
  password <new password>
  signout
  go <path>
  state
  help
  quit`

// run procesa una orden por linea hasta quit o fin de entrada.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(r.out, "%s> ", r.store.Path())
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		r.exec(ctx, fields[0], fields[1:])
	}
}

func (r *repl) exec(ctx context.Context, name string, args []string) {
	need := func(n int) bool {
		if len(args) < n {
			fmt.Fprintf(r.out, "usage error, try: help\n")
			return false
		}
		return true
	}

	switch name {
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "state":
		r.printState()
	case "signin":
		if need(2) {
			r.report(r.store.SignIn(ctx, args[0], args[1]))
		}
	case "signup":
		if need(2) {
			if r.store.SignUp(ctx, args[0], args[1], strings.Join(args[2:], " ")) {
				fmt.Fprintln(r.out, "ok: check your inbox for the verification code")
				return
			}
			r.report(false)
		}
	case "verify":
		if need(2) {
			_, err := r.client.VerifyEmail(ctx, args[0], args[1])
			r.reportErr(err)
		}
	case "reset":
		if need(1) {
			r.report(r.store.RequestPasswordReset(ctx, args[0]))
		}
	case "recover":
		if need(2) {
			_, err := r.client.Recover(ctx, args[0], args[1])
			r.reportErr(err)
		}
	case "password":
		if need(1) {
			r.report(r.store.UpdatePassword(ctx, args[0]))
		}
	case "signout":
		r.report(r.store.SignOut(ctx))
	case "go":
		if need(1) {
			r.nav.Go(args[0])
			r.store.SetPath(args[0])
		}
	default:
		fmt.Fprintf(r.out, "unknown command %q, try: help\n", name)
	}
}

func (r *repl) report(ok bool) {
	if ok {
		fmt.Fprintln(r.out, "ok")
		return
	}
	printAuthError(r.out, r.store.State().Err)
}

func (r *repl) reportErr(err error) {
	if err == nil {
		fmt.Fprintln(r.out, "ok")
		return
	}
	printAuthError(r.out, autherr.Classify(err))
}

func printAuthError(w io.Writer, err *autherr.Error) {
	if err == nil {
		fmt.Fprintln(w, "failed")
		return
	}
	fmt.Fprintf(w, "error [%s]: %s\n", err.Code, err.Message)
	if err.Remediation != "" {
		fmt.Fprintf(w, "  %s\n", err.Remediation)
	}
}

func (r *repl) printState() {
	st := r.store.State()
	view := struct {
		session.State
		Path          string `json:"path"`
		Authenticated bool   `json:"authenticated"`
		Admin         bool   `json:"admin"`
	}{st, r.store.Path(), st.IsAuthenticated(), st.IsAdmin()}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(view)
}

// syncWriter serializa la salida del prompt y la del navegador.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type sessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "anoint", "session.json")
}

func readSessionFile(path string) (string, string) {
	if path == "" {
		return "", ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ""
	}
	var t sessionTokens
	if err := json.Unmarshal(data, &t); err != nil {
		return "", ""
	}
	return t.AccessToken, t.RefreshToken
}

// writeSessionFile guarda el par vigente; sin sesion borra el archivo.
func writeSessionFile(path string, client *identity.Client) error {
	if path == "" {
		return nil
	}
	access, refresh := client.Tokens()
	if access == "" && refresh == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(sessionTokens{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
