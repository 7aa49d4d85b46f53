package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dalili-app/dalili/pkg/api"
	"github.com/dalili-app/dalili/pkg/index"
	"github.com/dalili-app/dalili/pkg/version"
	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP search API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address (overrides config)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"))
		},
	}
}

func serve(ctx context.Context, configPath, listenOverride string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	pageSize := env.cfg.PageSize
	if pageSize <= 0 {
		pageSize = index.DefaultPageSize
	}

	apiServer := api.NewServer(env.store, env.catalog, env.areas, env.historian, pageSize)
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)

	addr := env.cfg.ListenAddr
	if listenOverride != "" {
		addr = listenOverride
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      api.CorsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("dalili %s listening on %s", version.Version, addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Warning: failed to create catalog watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Printf("Warning: failed to close catalog watcher: %v", err)
			}
		}()

		if env.cfg.CatalogPath != "" {
			if err := watcher.Add(env.cfg.CatalogPath); err != nil {
				log.Printf("Warning: failed to watch catalog file %s: %v", env.cfg.CatalogPath, err)
			} else {
				log.Printf("Watching catalog file for changes: %s", env.cfg.CatalogPath)
			}
		}
	}

	reload := func() {
		cat, err := loadCatalog(env.cfg)
		if err != nil {
			log.Printf("Failed to reload catalog: %v", err)
			return
		}
		apiServer.SetCatalog(cat)
		log.Println("Catalog reloaded successfully")
	}

	shutdown := func() error {
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}

	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	if watcher != nil {
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return shutdown()
		case err := <-serverErr:
			return fmt.Errorf("http server: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.Println("Received SIGHUP, reloading catalog...")
				reload()
			case syscall.SIGINT, syscall.SIGTERM:
				return shutdown()
			}
		case event, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			// Editors often replace the file atomically, so rename and
			// remove events matter as much as plain writes.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				log.Printf("Catalog file changed: %s (event: %s), reloading...", event.Name, event.Op.String())

				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					time.Sleep(200 * time.Millisecond)

					if _, err := os.Stat(env.cfg.CatalogPath); os.IsNotExist(err) {
						log.Printf("Catalog file was removed and not replaced, skipping reload")
						continue
					}
					if err := watcher.Add(env.cfg.CatalogPath); err != nil {
						log.Printf("Warning: failed to re-add catalog file to watcher: %v", err)
					}
				} else {
					time.Sleep(100 * time.Millisecond)
				}

				reload()
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			log.Printf("Catalog watcher error: %v", err)
		}
	}
}
