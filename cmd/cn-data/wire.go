//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"cn-data/internal/app"
	"cn-data/internal/source"
)

// App holds application dependencies built by Wire.
type App struct {
	Config *app.Config
	Runner *app.Runner
}

// InitializeApp builds App via Wire. Caller must call cleanup when done.
func InitializeApp() (*App, func(), error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideLogger,
		app.ProvideCatalog,
		app.ProvideEngine,
		app.ProvideMetrics,
		app.ProvideRunID,
		app.ProvideCompactor,
		app.NewRunner,
		wire.Bind(new(source.Provider), new(*source.FSCatalog)),
		wire.Struct(new(App), "Config", "Runner"),
	)
	return nil, nil, nil
}
