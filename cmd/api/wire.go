//go:build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	"github.com/onkernel/bootimg/cmd/api/api"
	"github.com/onkernel/bootimg/cmd/api/config"
	"github.com/onkernel/bootimg/lib/convert"
	"github.com/onkernel/bootimg/lib/providers"
)

// application struct to hold initialized components
type application struct {
	Ctx            context.Context
	Logger         *slog.Logger
	Config         *config.Config
	ConvertManager convert.Manager
	ApiService     *api.ApiService
}

// initializeApp is the injector function
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideLogger,
		providers.ProvideContext,
		providers.ProvideConfig,
		providers.ProvidePaths,
		providers.ProvideRunner,
		providers.ProvideExporter,
		providers.ProvideMeter,
		providers.ProvideConvertManager,
		api.New,
		wire.Struct(new(application), "*"),
	))
}
