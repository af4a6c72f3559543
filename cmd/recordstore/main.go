package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/Bache94/ListeByBache/internal/handlers"
	httpapi "github.com/Bache94/ListeByBache/internal/http"
	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/repos"
	"github.com/Bache94/ListeByBache/internal/services"
	"github.com/Bache94/ListeByBache/migrations"
	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

func main() {
	cfg := config.LoadServer()
	logger := logging.New(cfg.LogLevel)
	if logger.Level() != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		logger.Errorf("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := migrations.Apply(db); err != nil {
		logger.Errorf("migrate: %v", err)
		os.Exit(1)
	}

	svc := services.NewRecordService(repos.NewRecordRepo(db), services.NewHub(), logger)
	r := httpapi.NewRouter(cfg, logger, handlers.NewRecordHandler(svc), handlers.NewEventsHandler(svc, logger))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Infof("record store listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("listen: %v", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}
