package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/target/mmk-auth/internal/bootstrap"
	domainauth "github.com/target/mmk-auth/internal/domain/auth"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	envFile    string
	jsonOutput bool
	verbose    bool
}

// NewRootCmd creates the root command for authctl.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "authctl",
		Short: "Manage the local authentication session",
		Long: `authctl signs in, signs up and signs out against the configured identity
backend (Firebase or the dev provider) and keeps the session token in the
secure credential store, so the session survives between invocations.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print session state as JSON")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write structured logs to stderr")

	cmd.AddCommand(newSignInCmd(opts))
	cmd.AddCommand(newSignUpCmd(opts))
	cmd.AddCommand(newSignOutCmd(opts))
	cmd.AddCommand(newWhoAmICmd(opts))
	cmd.AddCommand(newWatchCmd(opts))

	return cmd
}

// withApp loads configuration, builds the auth stack, runs fn and releases
// everything afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *bootstrap.App) error) error {
	var envFiles []string
	if opts.envFile != "" {
		envFiles = append(envFiles, opts.envFile)
	}
	cfg, err := bootstrap.LoadConfig(envFiles...)
	if err != nil {
		return err
	}

	logOut := io.Discard
	if opts.verbose {
		logOut = cmd.ErrOrStderr()
	}
	logger := bootstrap.InitLogger(logOut, cfg.IsDev)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close auth stack failed", "error", cerr)
		}
	}()

	return fn(ctx, app)
}

// stateView is the JSON rendering of a session state.
type stateView struct {
	Authenticated bool             `json:"authenticated"`
	User          *domainauth.User `json:"user"`
	Loading       bool             `json:"loading"`
	Error         string           `json:"error,omitempty"`
}

func printState(w io.Writer, opts *rootOptions, st domainauth.State) error {
	if opts.jsonOutput {
		b, err := json.Marshal(stateView{
			Authenticated: st.IsAuthenticated(),
			User:          st.User,
			Loading:       st.IsLoading,
			Error:         st.Error,
		})
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	var line string
	switch {
	case st.IsLoading:
		line = "Working..."
	case st.HasError():
		line = "Error: " + st.Error
	case st.IsAuthenticated():
		line = "Signed in as " + describeUser(*st.User)
	default:
		line = "Not signed in"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func describeUser(u domainauth.User) string {
	if u.HasEmail() {
		return fmt.Sprintf("%s (%s)", u.EmailOrEmpty(), u.ID)
	}
	return u.ID
}
