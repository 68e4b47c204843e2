// Command faunacache loads collections into a local cache directory and
// optionally keeps them current through change feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	faunatyped "github.com/Etesie/fauna-typed"
	"github.com/Etesie/fauna-typed/pkg/logger"
)

func main() {
	config := faunatyped.NewConfig()

	flag.StringVar(&config.Endpoint, "endpoint", config.Endpoint, "Fauna endpoint")
	flag.StringVar(&config.Secret, "secret", config.Secret, "Fauna secret")
	flag.StringVar(&config.CacheDir, "dir", config.CacheDir, "Cache directory (empty keeps the cache in memory)")
	flag.StringVar(&config.Format, "codec", config.Format, "Cache file format: json or cbor")
	flag.IntVar(&config.PageSize, "page-size", config.PageSize, "Documents per remote page")

	var collectionsFlag string
	flag.StringVar(&collectionsFlag, "collections", "", "Comma-separated list of collections to load (required)")
	watch := flag.Bool("watch", false, "Keep the cache current until interrupted")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	config.Logger = logger.NewConsole(os.Stderr, level)

	var collections []string
	for _, name := range strings.Split(collectionsFlag, ",") {
		if name = strings.TrimSpace(name); name != "" {
			collections = append(collections, name)
		}
	}
	if len(collections) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -collections is required")
		flag.Usage()
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, collections, *watch); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, config *faunatyped.Config, collections []string, watch bool) error {
	gw, err := config.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	storage, err := config.OpenPersistence()
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	stores := faunatyped.New(gw, storage, config.Options()...)
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			config.Logger.Warn("close failed", "error", err)
		}
	}()

	loaded := make([]*faunatyped.Store, 0, len(collections))
	for _, name := range collections {
		st, err := stores.Register(name)
		if err != nil {
			return err
		}
		loaded = append(loaded, st)
	}
	if err := stores.Init(ctx); err != nil {
		return err
	}

	for _, st := range loaded {
		cached, pages := st.Len(), 0
		for page := st.All(ctx); page != nil; page = page.After(ctx) {
			pages++
		}
		if err := st.Wait(ctx); err != nil {
			return err
		}
		fmt.Printf("%s\t%d cached\t%d loaded\t%d pages\n", st.Name(), cached, st.Len(), pages)
	}

	if !watch {
		return nil
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(loaded))
	for _, st := range loaded {
		wg.Add(1)
		go func(st *faunatyped.Store) {
			defer wg.Done()
			if err := st.Watch(ctx); err != nil {
				errs <- fmt.Errorf("watch %s: %w", st.Name(), err)
			}
		}(st)
	}
	wg.Wait()
	close(errs)
	return <-errs
}
