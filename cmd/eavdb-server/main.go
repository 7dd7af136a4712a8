// cmd/eavdb-server runs the EAV engine behind the Redis-style wire
// protocol and an optional HTTP admin surface.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/eavdb/internal/admin"
	"github.com/matthewbaird/eavdb/internal/auth"
	"github.com/matthewbaird/eavdb/internal/cueload"
	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/filter"
	"github.com/matthewbaird/eavdb/internal/session"
	"github.com/matthewbaird/eavdb/internal/snapshot"
	"github.com/matthewbaird/eavdb/internal/wireproto"
)

func main() {
	wireAddr := flag.String("wire-addr", ":6380", "address to serve the wire protocol on")
	adminAddr := flag.String("admin-addr", "", "address to serve the HTTP admin surface on (empty disables it)")
	ontologyDir := flag.String("ontology", "", "directory containing CUE ontology definitions to load at startup (empty skips)")
	snapshotPath := flag.String("snapshot", "", "path to a YAML configuration snapshot to restore at startup and write at shutdown (empty disables)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := executor.New(filter.NewEvaluator())

	if *ontologyDir != "" {
		diffs, err := cueload.Apply(eng, *ontologyDir)
		if err != nil {
			log.Fatalf("loading ontology: %v", err)
		}
		log.Printf("eavdb-server: loaded ontology from %s, %d schema diffs applied", *ontologyDir, len(diffs))
	}

	if *snapshotPath != "" {
		if f, err := os.Open(*snapshotPath); err == nil {
			if err := snapshot.Read(f, eng, "snapshot-restore"); err != nil {
				log.Printf("eavdb-server: restoring snapshot: %v", err)
			}
			f.Close()
		} else if !os.IsNotExist(err) {
			log.Fatalf("opening snapshot: %v", err)
		}
	}

	authenticator := auth.NewBcryptAuthenticator()
	sessions := session.NewManager()
	dispatcher := wireproto.NewDispatcher(eng, authenticator)

	ln, err := net.Listen("tcp", *wireAddr)
	if err != nil {
		log.Fatalf("listening on %s: %v", *wireAddr, err)
	}
	wireServer := wireproto.NewServer(dispatcher, sessions)

	go func() {
		log.Printf("eavdb-server: wire protocol listening on %s", *wireAddr)
		if err := wireServer.Serve(ln); err != nil {
			log.Printf("eavdb-server: wire server stopped: %v", err)
		}
	}()

	var httpServer *http.Server
	if *adminAddr != "" {
		r := chi.NewRouter()
		r.Use(chimiddleware.Logger, chimiddleware.Recoverer)
		r.Mount("/admin", admin.NewServer(eng).Routes())
		httpServer = &http.Server{Addr: *adminAddr, Handler: r}
		go func() {
			log.Printf("eavdb-server: admin surface listening on %s", *adminAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("eavdb-server: admin server stopped: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Printf("eavdb-server: shutting down")

	ln.Close()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}

	if *snapshotPath != "" {
		f, err := os.Create(*snapshotPath)
		if err != nil {
			log.Printf("eavdb-server: writing snapshot: %v", err)
		} else {
			if err := snapshot.Write(f, eng); err != nil {
				log.Printf("eavdb-server: writing snapshot: %v", err)
			}
			f.Close()
		}
	}
}
