package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/infrastructure/audit"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/internal/infrastructure/kms"
	"github.com/turtacn/authcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authcore/pkg/logger"
)

const bootstrapActor = "authcore-admin:bootstrap"

type tokenFlags struct {
	name        string
	permissions []string
	superAdmin  bool
	days        int
}

func (f *tokenFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "service name the token is issued to (required)")
	cmd.Flags().StringSliceVar(&f.permissions, "permission", nil, "permission to grant; repeatable. Defaults to the key management set")
	cmd.Flags().BoolVar(&f.superAdmin, "super-admin", false, "grant every permission")
	cmd.Flags().IntVar(&f.days, "expires-in-days", 0, "lifetime in days; 0 uses the server default")
	_ = cmd.MarkFlagRequired("name")
}

func (f *tokenFlags) request() *dto.CreateAdminTokenRequest {
	return &dto.CreateAdminTokenRequest{
		ServiceName:   f.name,
		Permissions:   f.permissions,
		IsSuperAdmin:  f.superAdmin,
		ExpiresInDays: f.days,
	}
}

func newTokensCommand(v *viper.Viper) *cobra.Command {
	tokens := &cobra.Command{
		Use:   "tokens",
		Short: "Manage admin API tokens",
	}

	var createFlags tokenFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an admin API token through the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := apiFrom(v)
			if err != nil {
				return err
			}
			var resp dto.CreateAdminTokenResponse
			if err := api.do(cmd.Context(), http.MethodPost, "/admin/tokens", createFlags.request(), &resp); err != nil {
				return err
			}
			return printIssued(cmd.OutOrStdout(), &resp)
		},
	}
	createFlags.register(create)

	list := &cobra.Command{
		Use:   "list",
		Short: "List admin API tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := apiFrom(v)
			if err != nil {
				return err
			}
			var resp struct {
				Tokens []models.AdminToken `json:"tokens"`
			}
			if err := api.do(cmd.Context(), http.MethodGet, "/admin/tokens", nil, &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Tokens))
			for _, t := range resp.Tokens {
				expires := "never"
				if t.ExpiresAt != nil {
					expires = t.ExpiresAt.Format(time.RFC3339)
				}
				perms := strings.Join(t.Permissions, ",")
				if t.IsSuperAdmin {
					perms = "*"
				}
				rows = append(rows, []string{
					t.ID, t.ServiceName, t.TokenPrefix + "...", perms,
					strconv.FormatBool(t.IsActive), expires, strconv.FormatInt(t.UsageCount, 10),
				})
			}
			return renderTable(cmd.OutOrStdout(), []string{"ID", "Service", "Prefix", "Permissions", "Active", "Expires", "Uses"}, rows)
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Deactivate an admin API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiFrom(v)
			if err != nil {
				return err
			}
			if err := api.do(cmd.Context(), http.MethodDelete, "/admin/tokens/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked admin token %s\n", args[0])
			return nil
		},
	}

	var bootstrapFlags tokenFlags
	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Issue an admin token directly against the database",
		Long: `bootstrap creates an admin token without a running server, for the first token
of a deployment. It reads the server configuration given by --config and needs
keys.persist enabled and a non-ephemeral master key, so that the servers can verify
the token with the signing key it was issued under.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := bootstrapToken(cmd.Context(), v.GetString("config"), bootstrapFlags.request())
			if err != nil {
				return err
			}
			return printIssued(cmd.OutOrStdout(), resp)
		},
	}
	bootstrapFlags.register(bootstrap)

	tokens.AddCommand(create, list, revoke, bootstrap)
	return tokens
}

func printIssued(w io.Writer, resp *dto.CreateAdminTokenResponse) error {
	_, err := fmt.Fprintf(w, "Admin token %s for %s, expires %s.\nStore it now; it cannot be shown again.\n\n%s\n",
		resp.ID, resp.ServiceName, resp.ExpiresAt.Format(time.RFC3339), resp.Token)
	return err
}

func bootstrapToken(ctx context.Context, configFile string, req *dto.CreateAdminTokenRequest) (*dto.CreateAdminTokenResponse, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Keys.Persist {
		return nil, fmt.Errorf("bootstrap requires keys.persist: servers could not verify a token signed by a key only this process knows")
	}

	log := logger.NewNoopLogger()
	clock := domainService.SystemClock{}

	db, err := postgres.NewDB(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = postgres.Close(db) }()

	src, err := kms.NewSecretSource(cfg, log)
	if err != nil {
		return nil, err
	}
	mek, err := crypto.LoadOrGenerate(ctx, src, crypto.MasterKeyOptions{Production: true}, log)
	if err != nil {
		return nil, err
	}

	keys := crypto.NewKeyRing(crypto.KeyRingConfig{
		KeyBits:          cfg.Keys.RSAKeyBits,
		Retention:        cfg.JWT.MaxTokenTTL(),
		RotationInterval: cfg.Keys.RotationInterval,
	}, clock, log, crypto.WithKeyPersistence(postgres.NewSigningKeyRepository(db), mek))
	if err := keys.Bootstrap(ctx); err != nil {
		return nil, err
	}

	tokens := domainService.NewTokenService(keys, domainService.TokenConfig{
		Issuer:           cfg.JWT.Issuer,
		UserTokenTTL:     cfg.JWT.UserTokenTTL,
		AdminTokenTTL:    cfg.JWT.AdminTokenTTL,
		AdminTokenMaxTTL: cfg.JWT.AdminTokenMaxTTL,
		RefreshWindow:    cfg.JWT.SessionRefreshWindow,
	}, clock, log)

	sink, closeSink, err := audit.NewSink(cfg, postgres.NewAuditRepository(db), log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeSink() }()

	svc := service.NewAdminTokenService(tokens, postgres.NewAdminTokenRepository(db), nil, sink, clock, log)
	return svc.Create(ctx, req, bootstrapActor)
}
