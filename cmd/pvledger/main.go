package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/pvledger/pvledger/pkg/foxess"
	"github.com/pvledger/pvledger/pkg/ledger"
	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/price"
	"github.com/pvledger/pvledger/pkg/server"
)

func main() {
	// init packages
	fox := foxess.Configured()
	pse := price.Configured()
	l := ledger.Configured(fox, pse)

	// init server
	srv := server.Configured(l, pse, fox)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.SyncLevel()
	if err != nil {
		panic(err)
	}
	log.Ctx(context.Background()).Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fox.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid foxess configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := pse.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid pse configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if !fox.HasCredentials() {
		log.Ctx(ctx).WarnContext(ctx, "no foxess credentials configured, only price endpoints will work")
	}

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
