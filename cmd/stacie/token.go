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

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Derive verification_token and login_token credential witnesses",
	}

	cmd.AddCommand(tokenVerifyCmd())
	cmd.AddCommand(tokenLoginCmd())
	return cmd
}

func tokenVerifyCmd() *cobra.Command {
	var username, passwordKeyFlag, saltFlag string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Derive verification_token from an existing password_key",
		Long: `verify runs the fixed-8-round token ladder over a caller-supplied
password_key with an empty nonce, producing verification_token — the value
a server persists to authenticate a user without ever storing a password.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || passwordKeyFlag == "" {
				return fmt.Errorf("--username and --password-key are required")
			}

			passwordKeyBytes, err := codec.Base64URLDecode(passwordKeyFlag)
			if err != nil {
				return fmt.Errorf("decoding --password-key: %w", err)
			}
			salt, err := decodeSalt(saltFlag)
			if err != nil {
				return fmt.Errorf("decoding --salt: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			passwordKey := stacie.NewMaterial(passwordKeyBytes)
			defer passwordKey.Zero()

			start := time.Now()
			verificationToken, err := stacie.DeriveVerificationToken(logger, passwordKey, username, salt)
			if err != nil {
				return fmt.Errorf("deriving verification_token: %w", err)
			}
			metrics.Default().RecordDerivation("verification_token", time.Since(start).Seconds())
			defer verificationToken.Zero()

			fmt.Printf("verification_token: %s\n", codec.Base64URLEncode(verificationToken.Bytes()))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account username (required)")
	cmd.Flags().StringVar(&passwordKeyFlag, "password-key", "", "Base64url-encoded password_key (required)")
	cmd.Flags().StringVar(&saltFlag, "salt", "", "Base64url-encoded salt used when deriving password_key")

	return cmd
}

func tokenLoginCmd() *cobra.Command {
	var username, verificationTokenFlag, saltFlag, nonceFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Derive a session-scoped ephemeral_login_token from verification_token",
		Long: `login runs the token ladder over a caller-supplied verification_token
with a per-login nonce, producing the session-scoped credential witness a
client presents to authenticate without replaying a prior login's token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || verificationTokenFlag == "" || nonceFlag == "" {
				return fmt.Errorf("--username, --verification-token, and --nonce are required")
			}

			verificationTokenBytes, err := codec.Base64URLDecode(verificationTokenFlag)
			if err != nil {
				return fmt.Errorf("decoding --verification-token: %w", err)
			}
			salt, err := decodeSalt(saltFlag)
			if err != nil {
				return fmt.Errorf("decoding --salt: %w", err)
			}
			nonce, err := codec.Base64URLDecode(nonceFlag)
			if err != nil {
				return fmt.Errorf("decoding --nonce: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			verificationToken := stacie.NewMaterial(verificationTokenBytes)
			defer verificationToken.Zero()

			start := time.Now()
			loginToken, err := stacie.DeriveLoginToken(logger, verificationToken, username, salt, nonce)
			if err != nil {
				return fmt.Errorf("deriving login_token: %w", err)
			}
			metrics.Default().RecordDerivation("login_token", time.Since(start).Seconds())
			defer loginToken.Zero()

			fmt.Printf("login_token: %s\n", codec.Base64URLEncode(loginToken.Bytes()))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account username (required)")
	cmd.Flags().StringVar(&verificationTokenFlag, "verification-token", "", "Base64url-encoded verification_token (required)")
	cmd.Flags().StringVar(&saltFlag, "salt", "", "Base64url-encoded salt used when deriving verification_token")
	cmd.Flags().StringVar(&nonceFlag, "nonce", "", "Base64url-encoded per-login nonce (required)")

	return cmd
}
