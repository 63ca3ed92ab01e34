package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cipherlog/internal/crypto"
)

const (
	publicKeyFile  = "group.pub.pem"
	privateKeyFile = "group.key.pem"
)

func keygenCmd() *cobra.Command {
	var (
		outDir string
		bits   int
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a group RSA key pair",
		Long: "Generate a group RSA key pair. Share both files with every member over a\n" +
			"trusted channel; holding them is what makes someone a member.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pubPath := filepath.Join(outDir, publicKeyFile)
			privPath := filepath.Join(outDir, privateKeyFile)
			if !force {
				for _, p := range []string{pubPath, privPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s exists (use --force to overwrite)", p)
					} else if !errors.Is(err, os.ErrNotExist) {
						return err
					}
				}
			}

			pub, priv, err := crypto.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(privPath, []byte(priv), 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(pubPath, []byte(pub), 0o644); err != nil {
				return err
			}
			group, err := crypto.GroupIDFromPEM(pub)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key pair written to %s and %s.\nGroup: %s\n", pubPath, privPath, group)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the key files")
	cmd.Flags().IntVar(&bits, "bits", crypto.DefaultRSABits, "RSA key size")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	return cmd
}
