package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"wg-fleet/pkg/api"
	"wg-fleet/pkg/db"
	"wg-fleet/pkg/extract"
	"wg-fleet/pkg/ledger"
	"wg-fleet/pkg/store"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	token := flag.String("token", "", "bootstrap auth token (optional)")
	storeType := flag.String("store", "sqlite", "store backend: memory|sqlite|consul (consul requires build tag consul)")
	sqlitePath := flag.String("sqlite-path", "/var/lib/wg-fleet/ledger.db", "ledger database path (when store=sqlite)")
	consulAddr := flag.String("consul-addr", "127.0.0.1:8500", "consul address (when store=consul)")
	withLogin := flag.Bool("login", false, "enable operator login backed by MySQL")
	tlsCert := flag.String("tls-cert", "", "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", "", "require and verify client certs using this CA (optional)")
	coordPeers := flag.Int("coord-min-peers", 2, "peer count at which a forwarding config counts as coordination server")
	flag.Parse()

	var identityStore store.IdentityStore
	switch *storeType {
	case "sqlite":
		s, err := store.NewSQLiteStore(*sqlitePath)
		if err != nil {
			log.Fatalf("open ledger database: %v", err)
		}
		identityStore = s
	case "consul":
		identityStore = store.NewConsulStore(*consulAddr)
	case "memory":
		identityStore = store.NewMemoryStore()
	default:
		log.Fatalf("unsupported store type: %s", *storeType)
	}

	led := ledger.New(identityStore)
	importer := extract.NewImporter(led)
	importer.Opts = extract.Options{CoordinationMinPeers: *coordPeers}

	hub := api.NewEventHub()
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, led, importer, *token, hub)
	mux.HandleFunc("/api/v1/events/ws", hub.HandleSubscribe)
	mux.Handle("/ui/", http.StripPrefix("/ui/", http.FileServer(http.Dir("web"))))

	if *withLogin {
		gdb, err := db.Init()
		if err != nil {
			log.Fatalf("operator login database: %v", err)
		}
		(&api.AuthHandler{DB: gdb}).RegisterRoutes(mux)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("controller listening on %s (store=%s)", *addr, *storeType)
	var err error
	if *tlsCert != "" && *tlsKey != "" {
		if *clientCA != "" {
			cfg, errTLS := api.ServerTLSConfig(*tlsCert, *tlsKey, *clientCA)
			if errTLS != nil {
				log.Fatalf("failed to build TLS config: %v", errTLS)
			}
			srv.TLSConfig = cfg
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		}
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}
