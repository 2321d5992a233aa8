// Package database provides a GORM-based database component with connection
// pooling, health checks, transactions, and auto-migration.
//
// # Architecture
//
// The package follows a driver-agnostic design: callers provide the GORM
// dialector (postgres for production, sqlite for tests) via WithDriver() on
// the Component, keeping the package independent of any single database
// engine.
//
// # Quick Start
//
//	import (
//	    "github.com/kbukum/sttrelay/internal/database"
//	    "github.com/kbukum/sttrelay/internal/store"
//	    "gorm.io/driver/postgres"
//	)
//
//	dbComponent := database.NewComponent(cfg, log).
//	    WithDriver(postgres.Open).
//	    WithAutoMigrate(store.Models()...)
//	app.RegisterComponent(dbComponent)
//
// Domain models (SubscriptionPlan, OrganizationSubscription, UsagePeriod,
// Transcription) live in internal/store, not here — this package only
// provides the connection, pooling, and migration machinery they run on.
// Every store model carries its own externally supplied string primary key
// (a conversationId, a plan slug, a subscription id), so this package has
// no generated-UUID base model to share.
//
// # Contents
//
//   - database.go: connection wrapper, transaction helpers, GORM logger adapter
//   - component.go: lifecycle component (Start/Stop/Health) wrapping DB
//   - errors.go: database error translation to AppError
//
// # Optional Component
//
// The database component respects the Enabled flag in configuration.
// When disabled, Start() returns immediately without initializing the
// connection, and Health() reports unhealthy with the message
// "database not initialized"; there is no separate disabled status.
//
//	cfg := database.Config{Enabled: false}  // Component will be disabled
//
// See component.go for full lifecycle documentation.
package database
