package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/igorgomez/medidascorporais/internal/identity"
)

func credentialFlags(cmd *cobra.Command, creds *identity.Credentials) {
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password (or MEDIDAS_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
}

func resolvePassword(creds *identity.Credentials) {
	if creds.Password == "" {
		creds.Password = os.Getenv("MEDIDAS_PASSWORD")
	}
	creds.Email = strings.TrimSpace(creds.Email)
}

func (c *cli) signUpCmd() *cobra.Command {
	var creds identity.Credentials
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolvePassword(&creds)
			if err := c.gate.SignUp(cmd.Context(), creds); err != nil {
				return errors.New(c.gate.Error())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created. Signed in as %s\n", c.gate.User().Email)
			c.migrationNotice(cmd.Context(), cmd.OutOrStdout())
			return nil
		},
	}
	credentialFlags(cmd, &creds)
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var creds identity.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolvePassword(&creds)
			if err := c.gate.SignIn(cmd.Context(), creds); err != nil {
				return errors.New(c.gate.Error())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", c.gate.User().Email)
			c.migrationNotice(cmd.Context(), cmd.OutOrStdout())
			return nil
		},
	}
	credentialFlags(cmd, &creds)
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.gate.User() == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			if err := c.gate.SignOut(cmd.Context()); err != nil {
				return errors.New(c.gate.Error())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Email, u.ID)
			c.migrationNotice(cmd.Context(), cmd.OutOrStdout())
			return nil
		},
	}
}
