// Package bootstrap orchestrates application lifecycle for this service.
//
// It holds an already-loaded typed configuration and provides component
// registration, dependency injection, and startup/shutdown hooks for rapid
// service initialization.
//
// # Quick Start
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app.RegisterComponent(dbComponent)
//	app.RegisterComponent(serverComponent)
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// The bootstrap package starts components in registration order, stops them
// in reverse order, handles graceful shutdown on OS signals, and aggregates
// health.
package bootstrap
