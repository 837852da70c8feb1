// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"context"
)

// Injectors from wire.go:

// BuildApp wires the server components using Google Wire.
func BuildApp(ctx context.Context) (*App, error) {
	config, err := provideConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger := provideLogger(config)
	hub := provideHub()
	catalog, err := provideCatalog(config)
	if err != nil {
		return nil, err
	}
	skipList := provideBoard()
	ledger, err := provideLedger(ctx, config)
	if err != nil {
		return nil, err
	}
	rewardService := provideService(config, logger, hub, skipList, catalog, ledger)
	loop, err := provideListener(config, logger, rewardService)
	if err != nil {
		return nil, err
	}
	handler := provideHandler(rewardService, catalog, hub, skipList, config)
	server := provideServer(config, handler)
	app := &App{
		Config:   config,
		Logger:   logger,
		Hub:      hub,
		Catalog:  catalog,
		Service:  rewardService,
		Listener: loop,
		Handler:  handler,
		Server:   server,
	}
	return app, nil
}
