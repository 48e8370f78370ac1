package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/abshelf/abs-offline/internal/api"
	"github.com/abshelf/abs-offline/internal/catalog"
	"github.com/abshelf/abs-offline/internal/config"
	"github.com/abshelf/abs-offline/internal/database"
	"github.com/abshelf/abs-offline/internal/integrity"
	"github.com/abshelf/abs-offline/internal/logutils"
	"github.com/abshelf/abs-offline/internal/manager"
	"github.com/abshelf/abs-offline/internal/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command> [args]

Commands:
  download <item-id>...   download items for offline listening
  list                    list downloaded items
  delete <item-id>...     delete downloaded items
  delete-all              delete every downloaded item
  stats                   show storage usage
  validate <item-id>...   check downloaded items for completeness
  cleanup                 remove incomplete download directories
  version                 print version information

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if args[0] == "version" {
		fmt.Printf("abs-offline %s (built %s)\n", Version, BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to load configuration")
	}
	logutils.InitLogger(cfg.LogLevel)

	db, err := database.NewSQLiteDatabase(cfg.DownloadPath)
	if err != nil {
		logutils.Log.WithError(err).Fatal("Failed to open download index")
	}
	defer func() { _ = db.Close() }()

	layout := storage.NewLayout(cfg.DownloadPath)

	// Catalog loading removes invalid directories itself, so inspection
	// commands have to run first to see them.
	switch args[0] {
	case "cleanup":
		runCleanup(layout, db)
		return
	case "validate":
		runValidate(layout, args[1:])
		return
	}

	cat := catalog.NewCatalog(layout, db)
	if err := cat.Load(context.Background()); err != nil {
		logutils.Log.WithError(err).Fatal("Failed to load catalog")
	}

	switch args[0] {
	case "download":
		runDownload(cfg, cat, args[1:])
	case "list":
		runList(cat)
	case "delete":
		runDelete(cat, args[1:])
	case "delete-all":
		runDeleteAll(cat)
	case "stats":
		runStats(cat)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		os.Exit(2)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("ABS_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func runDownload(cfg *config.Config, cat *catalog.Catalog, itemIDs []string) {
	if len(itemIDs) == 0 {
		logutils.Log.Fatal("download requires at least one item id")
	}
	if cfg.ServerURL == "" || cfg.APIToken == "" {
		logutils.Log.Fatal("download requires ABS_SERVER_URL and ABS_API_TOKEN (or server_url/api_token in the config file)")
	}

	client := api.NewClient(cfg)
	dm := manager.NewDownloadManager(cfg, client, cat)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logutils.Log.Info("Received shutdown signal, cancelling downloads...")
		dm.Shutdown()
	}()

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, itemID := range itemIDs {
		handle, err := dm.Download(itemID)
		if err != nil {
			logutils.Log.WithError(err).WithField("item_id", itemID).Error("Download request rejected")
			failed++
			continue
		}
		if handle == nil {
			fmt.Printf("%s: already downloaded\n", itemID)
			continue
		}

		wg.Add(1)
		go func(handle *manager.Handle) {
			defer wg.Done()
			if err := trackProgress(handle); err != nil {
				logutils.Log.WithError(err).WithField("item_id", handle.ItemID).Error("Download failed")
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(handle)
	}

	wg.Wait()
	dm.Shutdown()

	if failed > 0 {
		logutils.Log.WithField("failed", failed).Error("Some downloads did not complete")
		os.Exit(1)
	}
}

// trackProgress renders a bar from the handle's progress stream and returns
// the download's terminal error, if any.
func trackProgress(handle *manager.Handle) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetDescription(handle.ItemID),
	)

	for {
		select {
		case fraction, ok := <-handle.Progress:
			if !ok {
				handle.Progress = nil
				continue
			}
			_ = bar.Set(int(fraction * 100))
		case err := <-handle.Done:
			_ = bar.Finish()
			fmt.Println()
			return err
		}
	}
}

func runList(cat *catalog.Catalog) {
	entries := cat.Entries()
	if len(entries) == 0 {
		fmt.Println("no items downloaded")
		return
	}
	for _, entry := range entries {
		fmt.Printf("%-24s  %s — %s  (%d tracks, %s)\n",
			entry.Metadata.ID, entry.Metadata.Title, entry.Metadata.Author,
			len(entry.Metadata.Tracks), formatBytes(entry.SizeBytes))
	}
}

func runDelete(cat *catalog.Catalog, itemIDs []string) {
	if len(itemIDs) == 0 {
		logutils.Log.Fatal("delete requires at least one item id")
	}
	for _, itemID := range itemIDs {
		if err := cat.Delete(context.Background(), itemID); err != nil {
			logutils.Log.WithError(err).WithField("item_id", itemID).Fatal("Delete failed")
		}
		fmt.Printf("%s: deleted\n", itemID)
	}
}

func runDeleteAll(cat *catalog.Catalog) {
	if err := cat.DeleteAll(context.Background()); err != nil {
		logutils.Log.WithError(err).Fatal("Delete failed")
	}
	fmt.Println("all downloads deleted")
}

func runStats(cat *catalog.Catalog) {
	entries := cat.Entries()
	fmt.Printf("items: %d\n", len(entries))
	fmt.Printf("total size: %s\n", formatBytes(cat.TotalSize()))
}

func runValidate(layout storage.Layout, itemIDs []string) {
	if len(itemIDs) == 0 {
		logutils.Log.Fatal("validate requires at least one item id")
	}
	incomplete := false
	for _, itemID := range itemIDs {
		metadata, err := integrity.ReadMetadata(layout, itemID)
		if err != nil {
			fmt.Printf("%s: no readable metadata (%v)\n", itemID, err)
			incomplete = true
			continue
		}
		if !integrity.Validate(layout, itemID, metadata) {
			fmt.Printf("%s: incomplete (missing track files)\n", itemID)
			incomplete = true
			continue
		}
		fmt.Printf("%s: complete (%d tracks)\n", itemID, len(metadata.Tracks))
	}
	if incomplete {
		os.Exit(1)
	}
}

func runCleanup(layout storage.Layout, db database.Database) {
	removed := integrity.CleanupIncomplete(context.Background(), layout, db)
	if len(removed) == 0 {
		fmt.Println("nothing to clean up")
		return
	}
	for _, itemID := range removed {
		fmt.Printf("%s: removed incomplete download\n", itemID)
	}
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
