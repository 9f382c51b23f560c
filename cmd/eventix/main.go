package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventix/internal/httpapi"
	"eventix/pkg/config"
	"eventix/pkg/db"
	"eventix/pkg/logger"
	"eventix/pkg/redis"
	"eventix/pkg/server"
	"eventix/pkg/task"
	"eventix/services/catalog"
	"eventix/services/order"
	"eventix/services/sweeper"
	"eventix/services/voucher"
	"eventix/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(migrate, registerDBHooks),
		catalog.Module,
		wallet.Module,
		voucher.Module,
		order.Module,
		sweeper.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&catalog.Event{},
		&wallet.Point{},
		&wallet.Coupon{},
		&voucher.Voucher{},
		&order.PaymentStatus{},
		&order.Order{},
		&order.InstrumentAllocation{},
	); err != nil {
		return err
	}
	return order.SeedPaymentStatuses(gdb)
}

func registerDBHooks(cfg *config.Config, gdb *gorm.DB) error {
	if err := db.Otel(gdb); err != nil {
		return err
	}
	return db.Metric(gdb, cfg.Database.DBNAME)
}
