package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/renderinc/blip/internal/config"
	"github.com/renderinc/blip/internal/feed"
	"github.com/renderinc/blip/internal/search"
	"github.com/renderinc/blip/internal/settings"
	"github.com/renderinc/blip/internal/storage"
	"github.com/renderinc/blip/internal/sync"
	"github.com/renderinc/blip/internal/web"
	"github.com/renderinc/blip/internal/xkcd"
	"github.com/sirupsen/logrus"
)

var (
	cfg config.Config
	log *logrus.Logger
)

func main() {
	// Parse global flags
	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	configDir := globalFlags.String("config", ".", "Directory holding config.yaml")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Find where the command starts (skip global flags)
	commandIdx := 1
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}
	if commandIdx > 1 {
		globalFlags.Parse(os.Args[1:commandIdx])
	}

	var err error
	cfg, err = config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log = config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[commandIdx]
	args := os.Args[commandIdx+1:]

	switch command {
	case "sync":
		runSync(ctx)
	case "feed":
		feedFlags := flag.NewFlagSet("feed", flag.ExitOnError)
		after := feedFlags.Int("after", 0, "Show the page after this comic number")
		feedFlags.Parse(args)
		runFeed(ctx, *after)
	case "search":
		if len(args) < 1 {
			fmt.Println("Error: search text required")
			fmt.Println("Usage: blip [--config=<dir>] search <text>")
			os.Exit(1)
		}
		runSearch(ctx, strings.Join(args, " "))
	case "keyword":
		keywordFlags := flag.NewFlagSet("keyword", flag.ExitOnError)
		limit := keywordFlags.Int("limit", 10, "Maximum number of results")
		keywordFlags.Parse(args)
		if keywordFlags.NArg() < 1 {
			fmt.Println("Error: search query required")
			fmt.Println("Usage: blip [--config=<dir>] keyword [-limit=N] <query>")
			os.Exit(1)
		}
		runKeyword(strings.Join(keywordFlags.Args(), " "), *limit)
	case "favorite":
		favFlags := flag.NewFlagSet("favorite", flag.ExitOnError)
		off := favFlags.Bool("off", false, "Remove the comic from favorites")
		favFlags.Parse(args)
		if favFlags.NArg() < 1 {
			fmt.Println("Error: comic number required")
			fmt.Println("Usage: blip [--config=<dir>] favorite [-off] <num>")
			os.Exit(1)
		}
		runFavorite(ctx, mustNum(favFlags.Arg(0)), !*off)
	case "favorites":
		runFavorites(ctx)
	case "get-comic":
		if len(args) < 1 {
			fmt.Println("Error: comic number required")
			fmt.Println("Usage: blip [--config=<dir>] get-comic <num>")
			os.Exit(1)
		}
		runGetComic(ctx, mustNum(args[0]))
	case "browse":
		runBrowse(ctx)
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		host := serveFlags.String("host", cfg.Host, "Host to bind to")
		port := serveFlags.String("port", cfg.Port, "Port to listen on")
		serveFlags.Parse(args)
		runServe(ctx, *host, *port)
	case "stats":
		runStats(ctx)
	case "reindex":
		runReindex(ctx)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("blip - Offline xkcd feed, search and favorites")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  blip [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --config=<dir>    Directory holding config.yaml (default: .)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sync                     Download new comics and refresh transcripts")
	fmt.Println("  feed [-after=N]          Show a page of the feed, newest first")
	fmt.Println("  search <text>            Substring search over title, alt text and transcript")
	fmt.Println("  keyword [-limit=N] <q>   Ranked keyword search")
	fmt.Println("  favorite [-off] <num>    Mark or unmark a favorite")
	fmt.Println("  favorites                List favorites")
	fmt.Println("  get-comic <num>          Show one comic")
	fmt.Println("  browse                   Interactive feed browser")
	fmt.Println("  serve [-host] [-port]    Start the browse API")
	fmt.Println("  stats                    Show cache statistics")
	fmt.Println("  reindex                  Rebuild the keyword index from the cache")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  blip sync")
	fmt.Println("  blip search \"bobby tables\"")
	fmt.Println("  blip keyword 'compil~'")
	fmt.Println("  blip --config=$HOME/.blip serve -port=3000")
}

func mustNum(s string) int {
	num, err := strconv.Atoi(s)
	if err != nil || num <= 0 {
		fmt.Printf("Error: %q is not a comic number\n", s)
		os.Exit(1)
	}
	return num
}

func openDB() *storage.DB {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Error creating data directory: %v", err)
	}

	db, err := storage.Open(cfg.DBPath(), storage.Options{PageSize: cfg.PageSize, Logger: log})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	return db
}

func openIndex() *search.Index {
	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		log.Fatalf("Error opening search index: %v", err)
	}
	return idx
}

func runSync(ctx context.Context) {
	db := openDB()
	defer db.Close()

	idx := openIndex()
	defer idx.Close()

	store, err := settings.Open(cfg.SettingsPath(), log)
	if err != nil {
		log.Fatalf("Error opening settings: %v", err)
	}
	defer store.Close()

	client := xkcd.NewClient(cfg.XKCDURL, &http.Client{Timeout: cfg.HTTPTimeout})
	worker := sync.NewWorker(client, db, idx, store, sync.Options{
		Concurrency:        cfg.SyncConcurrency,
		TranscriptRefresh:  cfg.TranscriptRefresh,
		RedownloadInterval: cfg.RedownloadInterval,
	}, log)

	stats, err := worker.Sync(ctx)
	if err != nil {
		log.Fatalf("Error syncing: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Sync Complete ===")
	fmt.Printf("Latest comic:  %d\n", stats.Latest)
	fmt.Printf("Full download: %v\n", stats.Full)
	fmt.Printf("Fetched:       %d\n", stats.Fetched)
	fmt.Printf("New:           %d\n", stats.New)
	fmt.Printf("Updated:       %d\n", stats.Updated)
	fmt.Printf("Skipped:       %d\n", stats.Skipped)
	fmt.Printf("Transcripts:   %d\n", stats.Transcripts)
	fmt.Printf("Errors:        %d\n", stats.Errors)
	fmt.Printf("Duration:      %v\n", stats.Duration.Round(time.Millisecond))
}

func printRows(rows []feed.Row) {
	if len(rows) == 0 {
		fmt.Println("No comics")
		return
	}
	for _, row := range rows {
		star := " "
		if row.Favorite {
			star = "*"
		}
		fmt.Printf("%s %5d  %-40s %s\n", star, row.Num, row.Title, row.Date)
	}
}

func runFeed(ctx context.Context, after int) {
	db := openDB()
	defer db.Close()

	src := feed.Feed(db)
	var comics []storage.Comic
	var err error
	if after > 0 {
		comics, err = src.Next(ctx, after)
	} else {
		comics, err = src.First(ctx)
	}
	if err != nil {
		log.Fatalf("Error loading feed: %v", err)
	}

	printRows(feed.MapRows(comics, src.Style()))
	if len(comics) > 0 {
		fmt.Printf("\nNext page: blip feed -after=%d\n", comics[len(comics)-1].Num)
	}
}

func runSearch(ctx context.Context, text string) {
	db := openDB()
	defer db.Close()

	src := feed.Query(db, text)
	comics, err := src.First(ctx)
	if err != nil {
		log.Fatalf("Error searching: %v", err)
	}
	printRows(feed.MapRows(comics, src.Style()))
}

func runKeyword(query string, limit int) {
	idx := openIndex()
	defer idx.Close()

	results, err := idx.Search(query, limit)
	if err != nil {
		log.Fatalf("Error searching: %v", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("\nFound %d results:\n\n", len(results))
	for i, result := range results {
		fmt.Printf("%d. %s (#%d)\n", i+1, result.Title, result.Num)
		fmt.Printf("   URL: %s\n", (&storage.Comic{Num: result.Num}).URL())
		fmt.Printf("   Score: %.3f\n", result.Score)
		for _, field := range []string{"Transcript", "Alt"} {
			if snippets, ok := result.Fragments[field]; ok && len(snippets) > 0 {
				fmt.Printf("   Preview: %s\n", snippets[0])
				break
			}
		}
		fmt.Println()
	}
}

func runFavorite(ctx context.Context, num int, favorite bool) {
	db := openDB()
	defer db.Close()

	if err := db.SetFavorite(ctx, num, favorite); err != nil {
		log.Fatalf("Error saving favorite: %v", err)
	}
	if favorite {
		fmt.Printf("Comic %d added to favorites\n", num)
	} else {
		fmt.Printf("Comic %d removed from favorites\n", num)
	}
}

func runFavorites(ctx context.Context) {
	db := openDB()
	defer db.Close()

	comics, err := db.Favorites(ctx)
	if err != nil {
		log.Fatalf("Error listing favorites: %v", err)
	}
	printRows(feed.MapRows(comics, feed.TitlePlain))
}

func runGetComic(ctx context.Context, num int) {
	db := openDB()
	defer db.Close()

	c, err := db.Get(ctx, num)
	if err != nil {
		log.Fatalf("Error retrieving comic: %v", err)
	}
	if c == nil {
		fmt.Printf("Comic not found: %d\n", num)
		os.Exit(1)
	}

	row := feed.MapRow(*c, feed.TitleNumbered)
	fmt.Println(row.Title)
	fmt.Println(row.Date)
	fmt.Println()
	fmt.Println(row.Alt)
	fmt.Println()
	fmt.Println(row.Transcript)
	fmt.Println()
	fmt.Printf("Image:   %s\n", row.Img)
	fmt.Printf("Comic:   %s\n", row.URL)
	fmt.Printf("Explain: %s\n", row.ExplainURL)
}

func runServe(ctx context.Context, host, port string) {
	db := openDB()
	defer db.Close()

	idx := openIndex()
	defer idx.Close()

	server := web.NewServer(db, idx, log)
	httpServer := &http.Server{
		Addr:              host + ":" + port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Error shutting down server")
		}
	}()

	log.WithField("addr", httpServer.Addr).Info("Starting browse API")
	fmt.Printf("Browse API listening on http://%s\n", httpServer.Addr)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}

func runStats(ctx context.Context) {
	db := openDB()
	defer db.Close()

	idx := openIndex()
	defer idx.Close()

	dbCount, err := db.Count(ctx)
	if err != nil {
		log.Fatalf("Error getting database count: %v", err)
	}
	latest, err := db.Latest(ctx)
	if err != nil {
		log.Fatalf("Error getting latest comic: %v", err)
	}
	favorites, err := db.Favorites(ctx)
	if err != nil {
		log.Fatalf("Error listing favorites: %v", err)
	}
	indexCount, err := idx.Count()
	if err != nil {
		log.Fatalf("Error getting index count: %v", err)
	}

	fmt.Println("=== Cache Statistics ===")
	fmt.Printf("Comics in database: %d\n", dbCount)
	fmt.Printf("Latest comic:       %d\n", latest)
	fmt.Printf("Favorites:          %d\n", len(favorites))
	fmt.Printf("Comics in index:    %d\n", indexCount)
}

func runReindex(ctx context.Context) {
	fmt.Println("Rebuilding keyword index...")

	db := openDB()
	defer db.Close()

	if err := os.RemoveAll(cfg.IndexPath()); err != nil {
		log.Fatalf("Error removing old index: %v", err)
	}

	idx := openIndex()
	defer idx.Close()

	start := time.Now()
	err := idx.Rebuild(ctx, db, func(current, total int) {
		fmt.Printf("\rProgress: %d/%d", current, total)
	})
	if err != nil {
		log.Fatalf("Error rebuilding index: %v", err)
	}

	fmt.Printf("\nIndex rebuilt in %v\n", time.Since(start).Round(time.Millisecond))
}
