package cli

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/pkg/constants"
)

func newMEKCommand() *cobra.Command {
	mek := &cobra.Command{
		Use:   "mek",
		Short: "Master encryption key utilities",
	}
	mek.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new base64 encoded 256-bit master encryption key",
		Long: `generate prints a random key suitable for keys.master_key or the Vault secret.
Store it in a secret manager; it is never shown again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := make([]byte, constants.MasterKeyLength)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("read entropy: %w", err)
			}
			defer clear(key)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
			return err
		},
	})
	return mek
}

func newKeysCommand(v *viper.Viper) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage JWT signing keys",
	}

	rotate := &cobra.Command{
		Use:   "rotate",
		Short: "Generate a new active signing key; the previous key stays verifiable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := apiFrom(v)
			if err != nil {
				return err
			}
			var resp dto.KeyRotationResponse
			if err := api.do(cmd.Context(), http.MethodPost, "/admin/keys/rotate", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rotated signing key: new kid %s", resp.NewKeyID)
			if resp.OldKeyID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", previous kid %s", resp.OldKeyID)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List verifiable signing keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := apiFrom(v)
			if err != nil {
				return err
			}
			var resp struct {
				Keys []dto.SigningKeyInfo `json:"keys"`
			}
			if err := api.do(cmd.Context(), http.MethodGet, "/admin/keys", nil, &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Keys))
			for _, k := range resp.Keys {
				retired := ""
				if k.RetiredAt != nil {
					retired = k.RetiredAt.Format(time.RFC3339)
				}
				rows = append(rows, []string{
					k.KID, k.Algorithm, strconv.Itoa(k.KeyBits), strconv.FormatBool(k.Active),
					k.CreatedAt.Format(time.RFC3339), retired,
				})
			}
			return renderTable(cmd.OutOrStdout(), []string{"KID", "Alg", "Bits", "Active", "Created", "Retired"}, rows)
		},
	}

	keys.AddCommand(rotate, list)
	return keys
}
