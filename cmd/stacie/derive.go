package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacie-auth/stacie"
	"github.com/stacie-auth/stacie/internal/codec"
	"github.com/stacie-auth/stacie/internal/metrics"
)

func deriveCmd() *cobra.Command {
	var username, password, saltFlag string
	var bonus uint64

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive master_key and password_key for a username/password",
		Long: `derive runs the STACIE key ladder over a username and password,
printing the resulting seed, master_key, and password_key as base64url text.

The password is read from --password if given, otherwise prompted for
interactively (or read as a single line from stdin when not a TTY).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}

			if password == "" {
				var err error
				password, err = readPassword("Password: ")
				if err != nil {
					return err
				}
			}

			salt, err := decodeSalt(saltFlag)
			if err != nil {
				return fmt.Errorf("decoding --salt: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			m := metrics.Default()

			rounds := stacie.RoundCount(password, bonus)
			m.RecordRoundCount(rounds)

			start := time.Now()
			seed, err := stacie.Seed(logger, rounds, username, password, salt)
			if err != nil {
				return fmt.Errorf("deriving seed: %w", err)
			}
			m.RecordDerivation("seed", time.Since(start).Seconds())

			start = time.Now()
			masterKey := stacie.DeriveMasterKey(seed, rounds, username, password, salt)
			m.RecordDerivation("master_key", time.Since(start).Seconds())

			start = time.Now()
			passwordKey := stacie.DerivePasswordKey(masterKey, rounds, username, password, salt)
			m.RecordDerivation("password_key", time.Since(start).Seconds())

			fmt.Printf("rounds:       %d\n", rounds)
			fmt.Printf("seed:         %s\n", codec.Base64URLEncode(seed.Bytes()))
			fmt.Printf("master_key:   %s\n", codec.Base64URLEncode(masterKey.Bytes()))
			fmt.Printf("password_key: %s\n", codec.Base64URLEncode(passwordKey.Bytes()))

			seed.Zero()
			masterKey.Zero()
			passwordKey.Zero()

			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted for if omitted)")
	cmd.Flags().StringVar(&saltFlag, "salt", "", "Base64url-encoded salt (defaults to SHA-512(username))")
	cmd.Flags().Uint64Var(&bonus, "bonus", 0, "Server-configured additive round count")

	return cmd
}
