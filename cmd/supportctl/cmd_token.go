package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-iq/internal/auth"
	"github.com/spec-kit/support-iq/internal/domain"
)

var tokenFlags struct {
	clientID string
	role     string
	secret   string
	cost     int
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Hash a client secret into an AUTH_CLIENTS entry",
	RunE:  runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.clientID, "client-id", "", "Client ID (required)")
	f.StringVar(&tokenFlags.role, "role", string(domain.ClientRoleIngest), "INGEST or OPERATOR")
	f.StringVar(&tokenFlags.secret, "secret", "", "Client secret (required)")
	f.IntVar(&tokenFlags.cost, "cost", 0, "bcrypt cost (0 uses the default)")

	_ = tokenCmd.MarkFlagRequired("client-id")
	_ = tokenCmd.MarkFlagRequired("secret")
}

func runToken(cmd *cobra.Command, _ []string) error {
	role := domain.ClientRole(strings.ToUpper(tokenFlags.role))
	if role != domain.ClientRoleIngest && role != domain.ClientRoleOperator {
		return fmt.Errorf("unknown role %q", tokenFlags.role)
	}
	if strings.Contains(tokenFlags.clientID, ":") || strings.Contains(tokenFlags.clientID, ",") {
		return errors.New("client id must not contain ':' or ','")
	}
	hash, err := auth.HashSecret(tokenFlags.secret, tokenFlags.cost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:%s:%s\n", tokenFlags.clientID, role, hash)
	return nil
}
