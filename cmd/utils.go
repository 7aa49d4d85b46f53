package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dalili-app/dalili/pkg/area"
	"github.com/dalili-app/dalili/pkg/catalog"
	"github.com/dalili-app/dalili/pkg/config"
	"github.com/dalili-app/dalili/pkg/db"
	"github.com/dalili-app/dalili/pkg/history"
	"github.com/dalili-app/dalili/pkg/index"
)

// environment bundles the stores and services most commands need.
type environment struct {
	cfg       *config.Config
	conn      *sql.DB
	store     *index.Store
	catalog   *catalog.Catalog
	areas     *area.Provider
	historian *history.Reconciler
}

// openEnvironment loads the configuration and opens every service on top
// of it. The caller must close the returned environment.
func openEnvironment(configPath string) (*environment, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	conn, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			fmt.Printf("Warning: failed to close database: %v\n", cerr)
		}
		return nil, err
	}

	areas := area.NewProvider(cfg.Areas, filepath.Join(cfg.StorageDir, "area.json"))
	if err := areas.Load(); err != nil {
		fmt.Printf("Warning: failed to load area preference: %v\n", err)
	}

	historian := history.NewReconciler(
		history.NewDurableStore(conn),
		history.NewLocalCache(cfg.StorageDir),
	)

	return &environment{
		cfg:       cfg,
		conn:      conn,
		store:     index.NewStore(conn),
		catalog:   cat,
		areas:     areas,
		historian: historian,
	}, nil
}

func (e *environment) Close() {
	if err := e.conn.Close(); err != nil {
		fmt.Printf("Warning: failed to close database: %v\n", err)
	}
}

// loadCatalog reads the configured catalog file, falling back to the
// built-in sample when none is configured or present.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath != "" {
		cat, err := catalog.Load(cfg.CatalogPath)
		if err == nil {
			return cat, nil
		}
		fmt.Printf("Warning: failed to load catalog from %s, using built-in catalog: %v\n", cfg.CatalogPath, err)
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("loading built-in catalog: %w", err)
	}
	return cat, nil
}
