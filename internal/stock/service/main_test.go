package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/metrics"
	"github.com/medflow/medflow-stock/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	suite.Cleanup(ctx)
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func skipWithoutDatabase(t *testing.T) {
	t.Helper()
	if testing.Short() || suite == nil {
		t.Skip("skipping integration test")
	}
}

// harness wires every service on one database, the way main does
type harness struct {
	db        *database.DB
	publisher *testutil.MockPublisher
	metrics   *metrics.Metrics
	stores    *service.Stores
	batcher   *service.Batcher

	transfers    *service.TransferService
	ledger       *service.LedgerService
	intake       *service.IntakeService
	distribution *service.DistributionService
	receiving    *service.ReceivingService
}

func newHarness(db *database.DB) *harness {
	log := logger.Nop()
	h := &harness{
		db:        db,
		publisher: testutil.NewMockPublisher(),
		metrics:   metrics.New(),
		stores:    service.NewStores(db, 3),
	}
	pub := events.New(h.publisher, log)
	h.batcher = service.NewBatcher(db, h.stores.Groups)
	h.transfers = service.NewTransferService(db, h.stores, h.batcher, h.metrics, pub, log)
	h.ledger = service.NewLedgerService(db, h.stores, h.batcher, h.metrics, pub, log)
	h.intake = service.NewIntakeService(db, h.stores, h.batcher, h.metrics, pub, log)
	h.distribution = service.NewDistributionService(db, h.stores, h.batcher, "", h.metrics, pub, log)
	h.receiving = service.NewReceivingService(db, h.stores, h.distribution, h.metrics, pub, log)
	return h
}

// network is one hospital with a central and a primary warehouse, plus a
// second hospital with a primary warehouse
type network struct {
	fx       *testutil.FixtureFactory
	hospital int64
	other    int64
	supply   int64
	central  domain.WarehouseRef
	primary  domain.WarehouseRef
	remote   domain.WarehouseRef
}

func newNetwork(t *testing.T, db *database.DB) *network {
	t.Helper()
	fx := testutil.NewFixtureFactory(db)
	n := &network{fx: fx}
	n.hospital = fx.Hospital(t, testutil.WithClassification("central"))
	n.other = fx.Hospital(t)
	n.supply = fx.Supply(t, "Jeringa desechable 5ml")
	n.central = domain.WarehouseRef{Kind: domain.KindCentral, HospitalID: n.hospital, SiteID: fx.Site(t, n.hospital, "central")}
	n.primary = domain.WarehouseRef{Kind: domain.KindPrimary, HospitalID: n.hospital, SiteID: fx.Site(t, n.hospital, "primary")}
	n.remote = domain.WarehouseRef{Kind: domain.KindPrimary, HospitalID: n.other, SiteID: fx.Site(t, n.other, "primary")}
	return n
}

// lotWithStock creates a lot of the network supply and stocks it in w
func (n *network) lotWithStock(t *testing.T, w domain.WarehouseRef, qty int) int64 {
	t.Helper()
	lot := n.fx.Lot(t, n.supply, n.hospital)
	n.fx.Stock(t, w.Kind.String(), lot, w.SiteID, w.HospitalID, qty)
	return lot
}

func (n *network) quantity(t *testing.T, w domain.WarehouseRef, lot int64) int {
	t.Helper()
	return n.fx.StockQuantity(t, w.Kind.String(), lot, w.SiteID, w.HospitalID)
}
