//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

func TestPostgres_CodeConsumeAndUniqueClient(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("authcore"),
		tcpostgres.WithUsername("authcore"),
		tcpostgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := NewDB(ctx, &config.DatabaseConfig{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Int(),
		User:         "authcore",
		Password:     "authcore",
		Database:     "authcore",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		AutoMigrate:  true,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	defer Close(db)

	clients := NewClientRepository(db)
	client := &models.OAuthClient{ClientID: "mcp_client_pg", ClientSecretHash: "h", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, clients.Create(ctx, client))
	dup := *client
	err = clients.Create(ctx, &dup)
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))
	assert.True(t, isUniqueViolation(err))

	codes := NewCodeRepository(db)
	now := time.Now().UTC()
	require.NoError(t, codes.Save(ctx, newCode("pg-race", now.Add(time.Minute))))

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := codes.Consume(ctx, "pg-race", now); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}
