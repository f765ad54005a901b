// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// reflexd is the long-running daemon counterpart to cmd/reflexc: it
// loads a runtime-library module once, keeps one or more queries
// subscribed against it via package actor's QueryManager/EvaluateHandler
// pair, and serves a read-only /debug/queries diagnostics endpoint
// (actor.Inspector) until signaled to shut down, the same flag-driven,
// signal-driven shape as cmd/snellerd/run_daemon.go.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/compiler"
	"github.com/reflexcore/reflexcore/config"
	"github.com/reflexcore/reflexcore/effect"
	"github.com/reflexcore/reflexcore/snapshot"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
	"github.com/reflexcore/reflexcore/worker"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (required)")
	listenOverride := flag.String("listen", "", "override the config file's debug-endpoint listen address")
	queryPaths := stringList{}
	flag.Var(&queryPaths, "query", "path to a query arena dump to subscribe at startup (repeatable)")
	flag.Parse()

	logger := log.New(os.Stderr, "reflexd: ", log.Lshortfile)

	if *configPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("%s", err)
	}
	if *listenOverride != "" {
		cfg.Listen = *listenOverride
	}

	arena.Logf = logger.Printf
	term.Logf = logger.Printf
	compiler.Logf = logger.Printf
	wasmgen.Logf = logger.Printf
	worker.Logf = logger.Printf
	actor.Logf = logger.Printf

	runtimeModule, err := os.ReadFile(cfg.RuntimeLibrary)
	if err != nil {
		logger.Fatalf("reading runtime library: %s", err)
	}

	var cache *snapshot.Cache
	if cfg.ModuleCacheDir != "" {
		cache, err = snapshot.NewCache(cfg.ModuleCacheDir)
		if err != nil {
			logger.Fatalf("opening module cache: %s", err)
		}
		defer cache.Close()
	}

	qc, err := newQueryCompiler(runtimeModule, cache)
	if err != nil {
		logger.Fatalf("%s", err)
	}

	h := newHub(logger)
	evaluateHandler := actor.NewEvaluateHandler(qc.Build, h.dispatch)
	evaluateHandler.SetGcThreshold(cfg.GCThreshold)

	queryFactory := term.NewFactory(arena.New(arena.NewHeapBacking()))
	queryManager := actor.NewQueryManager(queryFactory, actor.NewQueryManagerMetrics("reflexd"))

	effects := effect.NewRouter(effect.NewTimeoutHandler(), effect.NewVariableHandler())

	h.queries = queryManager
	h.evaluate = evaluateHandler
	h.effects = effects

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evaluateHandler.Start(ctx)

	strategy := cfg.Strategy()
	for i, path := range queryPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Fatalf("reading query %s: %s", path, err)
		}
		src, root, err := loadQueryArena(raw)
		if err != nil {
			logger.Fatalf("parsing query %s: %s", path, err)
		}
		label := path
		homed := term.Serialize(src, []arena.Pointer{root}, queryFactory.Arena, queryFactory)
		h.dispatch(actor.QuerySubscribeAction{
			Query:                homed[0],
			Arena:                queryFactory.Arena,
			Label:                label,
			InvalidationStrategy: strategy,
		})
		logger.Printf("subscribed query #%d: %s", i, label)
	}

	inspector := actor.NewInspector(evaluateHandler, queryManager)

	var httpServer *http.Server
	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/queries", debugQueriesHandler(inspector))
		httpServer = &http.Server{Addr: cfg.Listen, Handler: mux}
		go func() {
			logger.Printf("debug endpoint listening on %s", cfg.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal(err)
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	evaluateHandler.Stop(shutdownCtx)
}

// stringList implements flag.Value, collecting one value per -query
// flag occurrence instead of overwriting a single string.
type stringList []string

func (s *stringList) String() string { return "" }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
