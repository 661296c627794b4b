//go:build integration

package register_repo_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/infrastructure/storage/postgres"
	"hvacstock/internal/infrastructure/storage/postgres/catalog_repo"
	"hvacstock/internal/infrastructure/storage/postgres/register_repo"
)

const migrationsDir = "../../../../../db/migrations"

type StockRepoIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	pool      *postgres.Pool
	txManager *postgres.TxManager
	repo      *register_repo.StockRepo
	service   *stock.Service
}

func TestStockRepoIntegration(t *testing.T) {
	suite.Run(t, new(StockRepoIntegrationSuite))
}

func (s *StockRepoIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("hvacstock"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := postgres.NewPool(s.ctx, postgres.DefaultPoolConfig(dsn))
	s.Require().NoError(err)
	s.pool = pool

	err = pool.VerifySchema(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "inventory_movements")

	s.applyMigrations()
	s.Require().NoError(pool.VerifySchema(s.ctx))

	s.txManager = postgres.NewTxManager(pool, postgres.WithStatementTimeout(5*time.Second))
	s.repo = register_repo.NewStockRepo(s.txManager)
	s.service = stock.NewService(
		s.repo,
		catalog_repo.NewProductRepo(s.txManager),
		s.txManager,
		postgres.NewOutboxPublisher(s.txManager),
		audit.NewOutboxRecorder(postgres.NewIsolatedOutboxPublisher(s.txManager)),
	)
}

func (s *StockRepoIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

// applyMigrations runs the Up section of every goose file in order.
func (s *StockRepoIntegrationSuite) applyMigrations() {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	s.Require().NoError(err)
	s.Require().NotEmpty(files)
	sort.Strings(files)

	for _, file := range files {
		raw, err := os.ReadFile(file)
		s.Require().NoError(err)

		up := string(raw)
		if i := strings.Index(up, "-- +goose Down"); i >= 0 {
			up = up[:i]
		}
		// No arguments: pgx uses the simple protocol, which accepts several statements.
		_, err = s.pool.Exec(s.ctx, up)
		s.Require().NoError(err, file)
	}
}

func (s *StockRepoIntegrationSuite) addProduct(sku string) id.ID {
	pid := id.New()
	_, err := s.pool.Exec(s.ctx,
		`INSERT INTO products (id, name, sku) VALUES ($1, $2, $3)`, pid, "Product "+sku, sku)
	s.Require().NoError(err)
	return pid
}

func (s *StockRepoIntegrationSuite) ledgerSum(productID id.ID) (sum, count int) {
	err := s.pool.QueryRow(s.ctx,
		`SELECT COALESCE(SUM(delta), 0), COUNT(*) FROM inventory_movements WHERE product_id = $1`,
		productID).Scan(&sum, &count)
	s.Require().NoError(err)
	return sum, count
}

func (s *StockRepoIntegrationSuite) TestConcurrentAdjustmentsSerialize() {
	pid := s.addProduct("CONC-1")

	// Enough stock that the floor holds in any interleaving.
	const opening = 30
	_, err := s.service.Adjust(s.ctx, stock.AdjustCommand{ProductID: pid, Delta: opening, Reason: entity.ReasonPOReceipt})
	s.Require().NoError(err)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		delta := 3
		reason := entity.ReasonManualIn
		if i%2 == 1 {
			delta = -3
			reason = entity.ReasonManualOut
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Adjust(s.ctx, stock.AdjustCommand{ProductID: pid, Delta: delta, Reason: reason})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	sum, count := s.ledgerSum(pid)
	s.Equal(opening, sum)
	s.Equal(workers+1, count)

	physical, err := s.repo.PhysicalStock(s.ctx, []id.ID{pid})
	s.Require().NoError(err)
	s.Equal(sum, physical[pid])
}

func (s *StockRepoIntegrationSuite) TestLedgerIsAppendOnly() {
	pid := s.addProduct("APPEND-1")
	m, err := s.service.Adjust(s.ctx, stock.AdjustCommand{ProductID: pid, Delta: 2, Reason: entity.ReasonManualIn})
	s.Require().NoError(err)

	_, err = s.pool.Exec(s.ctx, `UPDATE inventory_movements SET delta = 5 WHERE id = $1`, m.ID)
	s.Error(err)

	_, err = s.pool.Exec(s.ctx, `DELETE FROM inventory_movements WHERE id = $1`, m.ID)
	s.Error(err)

	_, err = s.pool.Exec(s.ctx,
		`INSERT INTO inventory_movements (id, product_id, delta, reason) VALUES ($1, $2, 0, 'adjust')`,
		id.New(), pid)
	s.Error(err, "zero delta must be rejected")
}

func (s *StockRepoIntegrationSuite) TestRecalculateRepairsAggregate() {
	pid := s.addProduct("RECALC-1")
	_, err := s.service.Adjust(s.ctx, stock.AdjustCommand{ProductID: pid, Delta: 7, Reason: entity.ReasonManualIn})
	s.Require().NoError(err)

	_, err = s.pool.Exec(s.ctx, `UPDATE inventory_stock SET physical = 99 WHERE product_id = $1`, pid)
	s.Require().NoError(err)

	fixed, err := s.service.Recalculate(s.ctx)
	s.Require().NoError(err)
	s.GreaterOrEqual(fixed, int64(1))

	physical, err := s.repo.PhysicalStock(s.ctx, []id.ID{pid})
	s.Require().NoError(err)
	s.Equal(7, physical[pid])

	fixed, err = s.service.Recalculate(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), fixed)
}

func (s *StockRepoIntegrationSuite) TestSearchMovementsJoinsCatalog() {
	pid := s.addProduct("SEARCH-1")
	_, err := s.service.Adjust(s.ctx, stock.AdjustCommand{ProductID: pid, Delta: 4, Reason: entity.ReasonManualIn})
	s.Require().NoError(err)

	views, err := s.repo.SearchMovements(s.ctx, stock.MovementFilter{Search: "search-1"}.Normalize())
	s.Require().NoError(err)
	s.Require().Len(views, 1)
	s.Equal("SEARCH-1", views[0].SKU)
	s.Equal(4, views[0].Delta)
}
