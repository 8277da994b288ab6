package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtacn/authcore/internal/config"
)

const auditSummaryQuery = `
SELECT event_type, result, count(*)
FROM audit_events
WHERE "timestamp" >= $1
GROUP BY event_type, result
ORDER BY event_type, result`

type auditRow struct {
	EventType string
	Result    string
	Count     int64
}

func newAuditCommand(v *viper.Viper) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the database audit trail",
	}

	var (
		dbURL string
		since time.Duration
	)
	report := &cobra.Command{
		Use:   "report",
		Short: "Summarize audit events by type and result",
		Long: `report reads the audit_events table written by audit.sink=database. The
connection comes from --db-url, or from the postgres settings of --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn := dbURL
			if dsn == "" {
				cfg, err := config.LoadConfig(v.GetString("config"))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if cfg.Database.Driver != "postgres" {
					return fmt.Errorf("audit report needs postgres; pass --db-url")
				}
				dsn = cfg.Database.GetDSN()
			}

			rows, err := summarizeAudit(cmd.Context(), dsn, time.Now().Add(-since))
			if err != nil {
				return err
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{r.EventType, r.Result, strconv.FormatInt(r.Count, 10)})
			}
			return renderTable(cmd.OutOrStdout(), []string{"Event", "Result", "Count"}, table)
		},
	}
	report.Flags().StringVar(&dbURL, "db-url", "", "postgres connection string")
	report.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")

	auditCmd.AddCommand(report)
	return auditCmd
}

func summarizeAudit(ctx context.Context, dsn string, from time.Time) ([]auditRow, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, auditSummaryQuery, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []auditRow
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(&r.EventType, &r.Result, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
