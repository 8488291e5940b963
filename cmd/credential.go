package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"supportkb/src/core/vault"
	"supportkb/src/storage/postgres/secretctrl"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage embedding provider credentials",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store a provider API key, encrypted at rest",
	Long: `Reads the API key from the PROVIDER_API_KEY environment variable,
encrypts it with the vault key and stores it for the named provider.
Requires VAULT_ENCRYPTION_KEY to be set.`,
	Args: cobra.ExactArgs(1),
	RunE: runCredentialSet,
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	rootCmd.AddCommand(credentialCmd)
}

func runCredentialSet(cmd *cobra.Command, args []string) error {
	keyHex := viper.GetString("vault.key")
	if keyHex == "" {
		return fmt.Errorf("VAULT_ENCRYPTION_KEY is not set")
	}
	v, err := vault.New(keyHex)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	apiKey := os.Getenv("PROVIDER_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("PROVIDER_API_KEY is not set")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	secrets := secretctrl.NewSecretService(db, v)
	credential, err := secrets.Store(cmd.Context(), args[0], apiKey)
	if err != nil {
		return err
	}

	fmt.Printf("stored credential %s for provider %s\n", credential.ID, credential.Provider)
	return nil
}
