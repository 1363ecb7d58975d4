// Command punt-cli is the command-line client: pipe text in, get a URL
// back. Authentication goes through the server's device flow.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"punt/pkg/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliCtx struct {
	server string
	client *client.Client
}

func (c *cliCtx) init() error {
	if c.server == "" {
		c.server = os.Getenv("PUNT_SERVER")
	}
	if c.server == "" {
		c.server = "https://punt.sh"
	}
	token, _ := loadToken()
	c.client = client.New(c.server, client.WithToken(token))
	return nil
}

func newRootCmd() *cobra.Command {
	var (
		ctx      cliCtx
		ttl      string
		burn     bool
		private  bool
		language string
	)
	c := cobra.Command{
		Use:           "punt [file]",
		Short:         "paste text from stdin or a file",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				content []byte
				err     error
			)
			if len(args) == 1 {
				content, err = os.ReadFile(args[0])
			} else {
				content, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return errors.Wrap(err, "read input")
			}
			if len(content) == 0 {
				return errors.New("nothing to paste")
			}
			result, err := ctx.client.Create(cmd.Context(), content, client.CreateOpts{
				TTL:           ttl,
				BurnAfterRead: burn,
				Private:       private,
				Language:      language,
			})
			if err != nil {
				return err
			}
			if result.TTLWarning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", result.TTLWarning)
			}
			url := result.URL
			if result.ViewKey != "" {
				url += "?key=" + result.ViewKey
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			fmt.Fprintln(cmd.ErrOrStderr(), "delete key:", result.DeleteKey)
			return nil
		},
	}
	c.PersistentFlags().StringVarP(&ctx.server, "server", "s", "", "server base URL (default $PUNT_SERVER or https://punt.sh)")
	c.Flags().StringVarP(&ttl, "ttl", "t", "", "time to live, e.g. 30m, 1d12h, or raw seconds")
	c.Flags().BoolVarP(&burn, "burn", "b", false, "delete the paste after its first read")
	c.Flags().BoolVarP(&private, "private", "p", false, "require a view key to read")
	c.Flags().StringVarP(&language, "language", "l", "", "language hint for rendering")
	c.AddCommand(
		newCatCmd(&ctx),
		newDeleteCmd(&ctx),
		newLoginCmd(&ctx),
		newWhoAmICmd(&ctx),
		newTokensCmd(&ctx),
	)
	return &c
}

func newCatCmd(ctx *cliCtx) *cobra.Command {
	var key string
	c := cobra.Command{
		Use:   "cat <id>",
		Short: "print a paste's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := ctx.client.Raw(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
	c.Flags().StringVarP(&key, "key", "k", "", "view key for private pastes")
	return &c
}

func newDeleteCmd(ctx *cliCtx) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> <delete-key>",
		Short: "delete a paste with its delete key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
}

func newLoginCmd(ctx *cliCtx) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "authenticate this machine via the device flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loginCtx, cancel := context.WithTimeout(cmd.Context(), 6*time.Minute)
			defer cancel()
			token, err := ctx.client.Login(loginCtx, func(init *client.LoginInit) {
				fmt.Fprintln(cmd.OutOrStdout(), "open this URL in your browser to approve:")
				fmt.Fprintln(cmd.OutOrStdout(), " ", init.ApprovalURL)
				fmt.Fprintln(cmd.OutOrStdout(), "waiting for approval...")
			})
			if err != nil {
				return err
			}
			if err := saveToken(token); err != nil {
				return errors.Wrap(err, "save token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}
}

func newWhoAmICmd(ctx *cliCtx) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "show the authenticated account and its paste stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := ctx.client.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner:  %s\n", me.OwnerID)
			fmt.Fprintf(cmd.OutOrStdout(), "pastes: %d active / %d total, %d views\n",
				me.Stats.ActivePastes, me.Stats.TotalPastes, me.Stats.TotalViews)
			return nil
		},
	}
}

func newTokensCmd(ctx *cliCtx) *cobra.Command {
	c := cobra.Command{
		Use:   "tokens",
		Short: "manage API tokens",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "list tokens for this account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				creds, err := ctx.client.Tokens(cmd.Context())
				if err != nil {
					return err
				}
				for _, cred := range creds {
					created := time.Unix(cred.CreatedAt, 0).Format(time.DateOnly)
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  created %s\n", cred.ID, cred.Name, created)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "revoke <id>",
			Short: "revoke a token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := ctx.client.RevokeToken(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "revoked")
				return nil
			},
		},
	)
	return &c
}

func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "punt", "token"), nil
}

func loadToken() (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}
