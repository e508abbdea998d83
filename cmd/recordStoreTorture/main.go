package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/i5heu/ouroboros-sprite/internal/keyValStore"
	"github.com/i5heu/ouroboros-sprite/internal/recordStore"
	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/sirupsen/logrus"
)

var schema = interfaces.Schema{Kind: "torture", Description: "upsert torture documents"}

func main() {
	backend := flag.String("backend", "badger", "badger or sqlite")
	dir := flag.String("dir", "./tmp", "data directory")
	names := flag.Int("names", 100, "distinct document names")
	writers := flag.Int("writers", 32, "concurrent writers per name")
	limitConcurrency := flag.Int("limit", 256, "max goroutines writing at once")
	flag.Parse()

	absoluteDir, err := filepath.Abs(*dir)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(absoluteDir, 0o755); err != nil {
		log.Fatal(err)
	}

	logger := logrus.New()
	store, err := openStore(*backend, absoluteDir, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.RegisterSchema(schema); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	start := time.Now()

	var mu sync.Mutex
	ids := make(map[string]map[types.RecordID]struct{}, *names)
	wg := sync.WaitGroup{}
	limitConcurrencyChan := make(chan struct{}, *limitConcurrency)

	for w := 0; w < *writers; w++ {
		for n := 0; n < *names; n++ {
			name := fmt.Sprintf("doc-%d", n)
			content := []byte(fmt.Sprintf(`{"writer": %d}`, w))

			wg.Add(1)
			limitConcurrencyChan <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-limitConcurrencyChan }()

				id, err := store.UpsertByName(ctx, interfaces.Document{Kind: schema.Kind, Name: name, Content: content})
				if err != nil {
					log.Fatalf("Error upserting %s: %v", name, err)
				}

				mu.Lock()
				if ids[name] == nil {
					ids[name] = make(map[types.RecordID]struct{})
				}
				ids[name][id] = struct{}{}
				mu.Unlock()
			}()
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	splitNames := 0
	notFoundCounter := 0
	for n := 0; n < *names; n++ {
		name := fmt.Sprintf("doc-%d", n)
		if len(ids[name]) != 1 {
			splitNames++
			log.Printf("Error: %s was assigned %d ids", name, len(ids[name]))
		}

		doc, ok, err := store.FindByName(ctx, schema.Kind, name)
		if err != nil {
			log.Fatalf("Error reading %s: %v", name, err)
		}
		if !ok {
			notFoundCounter++
			continue
		}
		if _, known := ids[name][doc.ID]; !known {
			log.Printf("Error: %s is stored under unexpected id %d", name, doc.ID)
		}
	}

	writes := *names * *writers
	fmt.Printf("backend: %s  writes: %d  in %s (%.0f/s)\n", *backend, writes, elapsed, float64(writes)/elapsed.Seconds())
	fmt.Println("names with more than one id:", splitNames, " names not found:", notFoundCounter)
	if splitNames > 0 || notFoundCounter > 0 {
		os.Exit(1)
	}
}

func openStore(backend, dir string, logger *logrus.Logger) (interfaces.RecordStore, error) {
	switch backend {
	case "sqlite":
		return recordStore.NewSQLiteStore(context.Background(), filepath.Join(dir, "torture.db"), logger)
	case "badger":
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:  []string{dir},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return recordStore.NewBadgerStore(kv, logger), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}
