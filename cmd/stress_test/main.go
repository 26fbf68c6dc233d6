package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

type store interface {
	port.CatalogRepository
	port.OrderRepository
}

func main() {
	initialStock := flag.Int("stock", 20, "units of the contested product")
	totalRequests := flag.Int("buyers", 50, "concurrent checkouts")
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	db, cleanup := openStore(ctx, cfg)
	defer cleanup()

	// Carts live in memory; the contested resource is catalog stock.
	carts := storage.NewMemoryAdapter()

	catalogService := service.NewCatalogService(db)
	cartService := service.NewCartService(db, carts)
	orderService := service.NewOrderService(db, db, carts, carts, *totalRequests)
	defer orderService.Close()

	category := &domain.Category{Name: "stress-" + uuid.NewString()[:8]}
	if err := catalogService.CreateCategory(ctx, category); err != nil {
		log.Fatal().Err(err).Msg("failed to create category")
	}
	product := &domain.Product{
		Name:       "Contested item",
		Price:      decimal.RequireFromString("99.90"),
		Stock:      *initialStock,
		CategoryID: category.ID,
	}
	if err := catalogService.CreateProduct(ctx, product); err != nil {
		log.Fatal().Err(err).Msg("failed to create product")
	}

	// Every buyer puts one unit in their own cart before the race starts.
	for i := 0; i < *totalRequests; i++ {
		if _, err := cartService.AddItem(ctx, sessionFor(i), product.ID, 1); err != nil {
			log.Fatal().Err(err).Int("buyer", i).Msg("failed to fill cart")
		}
	}

	var successCount, soldOutCount, failCount atomic.Int32

	shipping := domain.ShippingAddress{
		FirstName: "Stress", LastName: "Test", Email: "stress@example.com",
		Phone: "000", Street: "1 Main St", City: "Testville", Country: "NL",
	}

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()

			_, err := orderService.Checkout(ctx, service.CheckoutRequest{
				SessionID:       sessionFor(buyer),
				UserID:          fmt.Sprintf("user-%d", buyer),
				ShippingAddress: shipping,
				PaymentMethod:   "card",
				IdempotencyKey:  uuid.NewString(),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrStockExceeded):
				soldOutCount.Add(1)
			default:
				failCount.Add(1)
				log.Error().Err(err).Int("buyer", buyer).Msg("unexpected checkout error")
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	soldOut := int(soldOutCount.Load())
	expectedSuccess := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.Store.Driver)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Checkouts:  %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Other errors:     %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == expectedSuccess && soldOut == *totalRequests-expectedSuccess {
		fmt.Printf("PASS: exactly %d orders succeeded, %d sold out\n", success, soldOut)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			expectedSuccess, *totalRequests-expectedSuccess, success, soldOut)
	}

	final, err := db.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read final stock")
	}
	fmt.Printf("Final Stock:      %d\n", final.Stock)
	if final.Stock == *initialStock-expectedSuccess {
		fmt.Println("PASS: stock never oversold")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-expectedSuccess, final.Stock)
	}
}

func sessionFor(buyer int) string {
	return fmt.Sprintf("stress:%d", buyer)
}

func openStore(ctx context.Context, cfg *config.Config) (store, func()) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		sqlDB, err := storage.OpenMySQL(ctx, cfg.Store.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect mysql")
		}
		if err := storage.MigrateMySQL(sqlDB); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate mysql")
		}
		return storage.NewMySQLAdapter(sqlDB), func() { sqlDB.Close() }
	case config.DriverMongo:
		client, err := storage.ConnectMongo(ctx, cfg.Store.MongoURI)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect mongo")
		}
		return storage.NewMongoAdapter(client.Database(cfg.Store.MongoDB)), func() { _ = client.Disconnect(context.Background()) }
	default:
		return storage.NewMemoryAdapter(), func() {}
	}
}
