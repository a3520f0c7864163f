package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/schemainspector/internal/core/config"
	"github.com/solatis/schemainspector/internal/encryption"
	"github.com/solatis/schemainspector/internal/types"
)

// publicKeyEnv lets encrypt pick up the same key the inspector is configured with.
const publicKeyEnv = "SI_INSPECTOR_PUBLIC_ENCRYPTION_KEY"

var encryptCmd = &cobra.Command{
	Use:   "encrypt --key <public-key-hex> <value>",
	Short: "Encrypt a property value the way the inspector does",
	Long: `Encrypt parses value as JSON when it is valid JSON and treats it as a string
otherwise, then encrypts its JSON form for the given P-256 public key.`,
	Args: cobra.ExactArgs(1),
	RunE: runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <ciphertext-base64>",
	Short: "Decrypt a value using the private key in SI_PRIVATE_KEY",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecrypt,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a P-256 key pair for value encryption",
	Args:  cobra.NoArgs,
	RunE:  runKeygen,
}

func init() {
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(keygenCmd)
	encryptCmd.Flags().String("key", "", "recipient public key, hex (default $"+publicKeyEnv+")")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		key = strings.TrimSpace(os.Getenv(publicKeyEnv))
	}
	if key == "" {
		return fmt.Errorf("--key required (or set %s)", publicKeyEnv)
	}

	value, err := types.FromJSON([]byte(args[0]))
	if err != nil {
		value = types.String(args[0])
	}

	ct, err := encryption.EncryptValue(value, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ct)
	return nil
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	key, err := config.PrivateKey()
	if err != nil {
		return err
	}
	plain, err := encryption.Decrypt(strings.TrimSpace(args[0]), key)
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), plain)
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := encryption.GenerateKeyPair()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(kp)
}
