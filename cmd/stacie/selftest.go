package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacie-auth/stacie"
)

func selftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run the RFC end-to-end test vector and report pass/fail",
		Long: `selftest exercises the full key ladder through realm sealing using the
fixed username/password/salt/shard/bonus combination from the STACIE RFC
test vector, verifying every intermediate length and the final round-trip.
It is meant for verifying a deployment's build rather than for everyday use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest()
		},
	}
}

func rfcDecode(s string) []byte {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("stacie: malformed RFC fixture: %v", err))
	}
	return b
}

func runSelftest() error {
	username := "user@example.tld"
	password := "password"
	bonus := uint64(131072)

	salt := rfcDecode("lyrtpzN8cBRZvsiHX6y4j-pJOjIyJeuw5aVXzrItw1G4EOa-6CA4R9BhVpinkeH0UeXyOeTisHR3Ik3yuOhxbWPyesMJvfp0IBtx0f0uorb8wPnhw5BxDJVCb1TOSE50PFKGBFMkc63Koa7vMDj-WEoDj2X0kkTtlW6cUvF8i-M")
	shard := rfcDecode("gD65Kdeda1hB2Q6gdZl0fetGg2viLXWG0vmKN4HxE3Jp3Z0Gkt5prqSmcuY2o8t24iGSCOnFDpP71c3xl9SX9Q")

	rounds := stacie.RoundCount(password, bonus)
	if err := expect("round count", rounds, uint32(196608)); err != nil {
		return err
	}

	seed, err := stacie.Seed(nil, rounds, username, password, salt)
	if err != nil {
		return fmt.Errorf("deriving seed: %w", err)
	}
	defer seed.Zero()

	masterKey := stacie.DeriveMasterKey(seed, rounds, username, password, salt)
	defer masterKey.Zero()

	passwordKey := stacie.DerivePasswordKey(masterKey, rounds, username, password, salt)
	defer passwordKey.Zero()
	if masterKey.Equal(passwordKey) {
		return fmt.Errorf("selftest: master_key and password_key must differ")
	}

	verificationToken, err := stacie.DeriveVerificationToken(nil, passwordKey, username, salt)
	if err != nil {
		return fmt.Errorf("deriving verification_token: %w", err)
	}
	defer verificationToken.Zero()

	realmKey, err := stacie.DeriveRealmKey(masterKey, "mail", shard)
	if err != nil {
		return fmt.Errorf("deriving realm key: %w", err)
	}

	for label, m := range map[string]struct{ got, want int }{
		"seed":               {seed.Len(), 64},
		"master_key":         {masterKey.Len(), 64},
		"password_key":       {passwordKey.Len(), 64},
		"verification_token": {verificationToken.Len(), 64},
		"realm_vector_key":   {realmKey.VectorKey.Len(), 16},
		"realm_tag_key":      {realmKey.TagKey.Len(), 16},
		"realm_cipher_key":   {realmKey.CipherKey.Len(), 32},
	} {
		if err := expect(label+" length", m.got, m.want); err != nil {
			return err
		}
	}

	secretMessage := "Attack at dawn!"
	envelope, err := realmKey.Seal([]byte(secretMessage), 0)
	if err != nil {
		return fmt.Errorf("sealing: %w", err)
	}
	if err := expect("envelope length", len(envelope), 66); err != nil {
		return err
	}

	opened, err := realmKey.Open(envelope)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	if string(opened) != secretMessage {
		return fmt.Errorf("selftest: opened plaintext %q, want %q", opened, secretMessage)
	}

	fmt.Println("PASS: RFC test vector round-tripped through the full key ladder and realm envelope")
	return nil
}

func expect[T comparable](label string, got, want T) error {
	if got != want {
		return fmt.Errorf("selftest: %s = %v, want %v", label, got, want)
	}
	return nil
}
