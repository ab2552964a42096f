package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/netguru/repolib/internal/testutil"
	"github.com/netguru/repolib/pkg/api"
)

type PostgresSourceTestSuite struct {
	suite.Suite
	db *sql.DB
	n  int
}

func TestPostgresSourceSuite(t *testing.T) {
	dsn := testutil.GetPostgresDSN(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	suite.Run(t, &PostgresSourceTestSuite{db: db})
}

func (p *PostgresSourceTestSuite) TestContract() {
	runSourceContract(p.T(), func(t *testing.T) api.DataSource[task] {
		p.n++
		table := fmt.Sprintf("entities_test_%d", p.n)
		_, err := p.db.Exec("DROP TABLE IF EXISTS " + table)
		require.NoError(t, err)

		ds, err := NewPostgresSource(p.db, table, taskID)
		require.NoError(t, err)
		return ds
	})
}

type MongoSourceTestSuite struct {
	suite.Suite
	client *mongo.Client
	n      int
}

func TestMongoSourceSuite(t *testing.T) {
	uri := testutil.GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	suite.Run(t, &MongoSourceTestSuite{client: client})
}

func (m *MongoSourceTestSuite) TestContract() {
	runSourceContract(m.T(), func(t *testing.T) api.DataSource[task] {
		m.n++
		return NewMongoSource(m.client, "repolib_test", fmt.Sprintf("entities_test_%d", m.n), taskID)
	})
}
