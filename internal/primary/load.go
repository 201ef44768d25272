package primary

import (
	"context"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/resilience"
)

// LoadDumpFile reads a node dump from path.
func LoadDumpFile(path string) (*MemTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening node dump: %w", err)
	}
	defer f.Close()
	return ReadDump(f)
}

// Load returns the primary table of document: the node dump at dumpPath
// when one is given, otherwise the nodes table in Postgres.
func Load(ctx context.Context, dumpPath string, pg config.PostgresConfig, document string) (*MemTable, error) {
	if dumpPath != "" {
		return LoadDumpFile(dumpPath)
	}
	var client *postgres.Client
	err := resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{}, func() error {
		var err error
		client, err = postgres.New(pg)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return LoadPostgres(ctx, client, document)
}
