// cmd/dicehall/token.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jason-s-yu/dicehall/internal/gateway"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a user token signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			auth, err := gateway.NewAuthenticator([]byte(cfg.TokenSecret))
			if err != nil {
				return err
			}
			if name == "" {
				name = args[0]
			}
			tok, err := auth.Issue(gateway.KindUser, args[0], name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name embedded in the token (defaults to the user id)")
	return cmd
}
