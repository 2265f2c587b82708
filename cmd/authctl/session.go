package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/target/mmk-auth/internal/bootstrap"
	"github.com/target/mmk-auth/internal/validation"
)

// credentialOptions holds the flags of signin and signup.
type credentialOptions struct {
	email         string
	password      string
	passwordStdin bool
}

func (c *credentialOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.password, "password", "", "account password")
	cmd.Flags().BoolVar(&c.passwordStdin, "password-stdin", false, "read the password from stdin")
}

func (c *credentialOptions) resolvePassword(in io.Reader) error {
	if !c.passwordStdin {
		return nil
	}
	if c.password != "" {
		return errors.New("--password and --password-stdin are mutually exclusive")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	c.password = strings.TrimRight(line, "\r\n")
	return nil
}

func newSignInCmd(root *rootOptions) *cobra.Command {
	creds := &credentialOptions{}

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. The email shape is checked locally before
any request is sent; the backend verifies the password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := creds.resolvePassword(cmd.InOrStdin()); err != nil {
				return err
			}
			if err := validation.CheckSignIn(creds.email, creds.password); err != nil {
				return fieldError(cmd.ErrOrStderr(), err)
			}
			return withApp(cmd, root, func(ctx context.Context, app *bootstrap.App) error {
				app.Session.SignIn(ctx, creds.email, creds.password)
				return finish(cmd, root, app)
			})
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignUpCmd(root *rootOptions) *cobra.Command {
	creds := &credentialOptions{}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Long: fmt.Sprintf(`Create an account and sign in. Passwords need at least %d characters with
an uppercase letter, a lowercase letter, a digit and a symbol.`, validation.MinPasswordLength),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := creds.resolvePassword(cmd.InOrStdin()); err != nil {
				return err
			}
			if err := validation.CheckSignUp(creds.email, creds.password); err != nil {
				return fieldError(cmd.ErrOrStderr(), err)
			}
			return withApp(cmd, root, func(ctx context.Context, app *bootstrap.App) error {
				app.Session.SignUp(ctx, creds.email, creds.password)
				return finish(cmd, root, app)
			})
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignOutCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, app *bootstrap.App) error {
				app.Session.SignOut(ctx)
				return finish(cmd, root, app)
			})
		},
	}
}

func newWhoAmICmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the restored session, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(_ context.Context, app *bootstrap.App) error {
				return printState(cmd.OutOrStdout(), root, app.Session.State())
			})
		},
	}
}

// finish prints the resulting state and turns a recorded failure into a
// non-zero exit.
func finish(cmd *cobra.Command, root *rootOptions, app *bootstrap.App) error {
	st := app.Session.State()
	if err := printState(cmd.OutOrStdout(), root, st); err != nil {
		return err
	}
	if st.HasError() {
		return errors.New(st.Error)
	}
	return nil
}

// fieldError prints one line per invalid field and returns a summary error.
func fieldError(w io.Writer, err error) error {
	fields := validation.FieldMessages(err)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, werr := fmt.Fprintf(w, "%s: %s\n", name, fields[name]); werr != nil {
			return werr
		}
	}
	return fmt.Errorf("invalid input: %s", strings.Join(names, ", "))
}
