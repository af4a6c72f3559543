package main

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bache94/ListeByBache/internal/clients"
	"github.com/Bache94/ListeByBache/internal/cloudsync"
	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/Bache94/ListeByBache/internal/httpserver"
	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/Bache94/ListeByBache/internal/shoppinglist"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)
	if logger.Level() != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	list, err := shoppinglist.NewStore(cfg.ListPath, logger)
	if err != nil {
		logger.Errorf("load shopping list: %v", err)
		os.Exit(1)
	}

	cs := cfg.CloudSync
	client := cloudsync.NewClient(clients.NewHTTPClient(cs), cs.BaseURL, cs.Token, cs.UserID)
	m := cloudsync.NewManager(client, cs, logger)
	m.Bind(list)

	sh := newShell(m, list, os.Stdout)
	stopWatch := m.Subscribe(sh.watch)
	defer stopWatch()

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{Addr: cfg.StatusAddr, Handler: httpserver.NewRouter(m, list, logger), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Infof("control API listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("control API: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Infof("device %q ready, store at %s", cs.DeviceName, cs.BaseURL)
	sh.printf("%s\n", helpText)
	serve(ctx, sh, lines, quit, srv != nil)

	cancel()
	m.Leave()
	m.Wait()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// serve feeds input lines to the shell until quit or a quit command. When
// input ends the process exits too, unless keepRunning is set for the
// control API.
func serve(ctx context.Context, sh *shell, lines <-chan string, quit <-chan os.Signal, keepRunning bool) {
	for {
		select {
		case <-quit:
			return
		case line, ok := <-lines:
			if !ok {
				if !keepRunning {
					return
				}
				lines = nil
				continue
			}
			if sh.exec(ctx, line) {
				return
			}
		}
	}
}
