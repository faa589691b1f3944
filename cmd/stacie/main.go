// Package main provides the stacie CLI binary.
//
// stacie exposes the credential-derivation key ladder and realm-encryption
// envelope as command-line operations for scripting, manual verification
// against the RFC test vector, and running the ops server that reports a
// deployment's realm and guardrail posture.
//
// See https://github.com/stacie-auth/stacie for the full specification.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "stacie",
		Short:   "STACIE credential derivation and realm encryption",
		Version: version,
		Long: `stacie derives per-user credential material through the STACIE key
ladder and seals per-realm secrets with the STACIE realm-encryption
envelope, without ever transmitting or persisting a plaintext password.`,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "derive", Title: "Credential Derivation:"})
	rootCmd.AddGroup(&cobra.Group{ID: "realm", Title: "Realm Encryption:"})
	rootCmd.AddGroup(&cobra.Group{ID: "ops", Title: "Operations:"})

	derive := deriveCmd()
	derive.GroupID = "derive"
	rootCmd.AddCommand(derive)

	token := tokenCmd()
	token.GroupID = "derive"
	rootCmd.AddCommand(token)

	realm := realmCmd()
	realm.GroupID = "realm"
	rootCmd.AddCommand(realm)

	selftest := selftestCmd()
	selftest.GroupID = "ops"
	rootCmd.AddCommand(selftest)

	serve := serveCmd()
	serve.GroupID = "ops"
	rootCmd.AddCommand(serve)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stacie: %v\n", err)
		os.Exit(1)
	}
}
