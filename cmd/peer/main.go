// cmd/peer is the main entrypoint for one peer process in the
// energy-credit ledger group.
//
// Configuration is entirely via flags, matching the reference module's
// posture of a single binary that can serve any role.
//
// Example — three peers on one machine:
//
//	./peer -id 1 -unicast-port-base 6000 -peers 2=127.0.0.1:6002,3=127.0.0.1:6003 -debug-addr :9001
//	./peer -id 2 -unicast-port-base 6000 -peers 1=127.0.0.1:6001,3=127.0.0.1:6003 -debug-addr :9002
//	./peer -id 3 -unicast-port-base 6000 -peers 1=127.0.0.1:6001,2=127.0.0.1:6002 -debug-addr :9003
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distributed-energy-ledger/internal/config"
	"distributed-energy-ledger/internal/debugapi"
	"distributed-energy-ledger/internal/orchestrator"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	node, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := node.Run(ctx); err != nil {
			log.Printf("node run error: %v", err)
		}
	}()

	var debugSrv *debugapi.Server
	if cfg.DebugAPIAddr != "" {
		debugSrv = debugapi.New(cfg.DebugAPIAddr, node)
		go func() {
			log.Printf("node %s debug API listening on %s", cfg.NodeID, cfg.DebugAPIAddr)
			if err := debugSrv.ListenAndServe(); err != nil {
				log.Printf("debug API error: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down node %s", cfg.NodeID)
	cancel()

	if debugSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		debugSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	<-done
}
