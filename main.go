package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	gojson "github.com/goccy/go-json"
	"github.com/golang/glog"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/restcollection/collection"
	"github.com/stevemurr/restcollection/handler"
	"github.com/stevemurr/restcollection/store"
	"github.com/stevemurr/restcollection/transport"
)

const Version = "0.2.0"

const usage = `Remote collection server and client.

Environment defaults for serve:
    HOST, PORT, DATA_DIR, STORE_BACKEND (json|sqlite|memory), ALLOWED_ORIGINS

Usage:
    restcollection serve [--host=<host>] [--port=<port>] [--data_dir=<dir>]
        [--store=<backend>] [--origins=<origins>] [--v=<level>]
    restcollection list <endpoint> [--limit=<n>] [--offset=<n>] [--sort=<field>]
        [--search=<q>] [--where=<field=value>...] [--attribute=<name>]
        [--rps=<rps>] [--debug]
    restcollection pages <endpoint> --limit=<n> [--offset=<n>] [--page=<n>]
    restcollection url <endpoint> [--path=<path>] [--limit=<n>] [--offset=<n>]
        [--sort=<field>] [--search=<q>] [--where=<field=value>...]
    restcollection sync --config=<path> [--concurrency=<n>] [--rps=<rps>] [--debug]
    restcollection -h | --help
    restcollection --version

Options:
    -h --help                Show this screen.
    --version                Show version.
    --host=<host>            Listen host.
    --port=<port>            Listen port.
    --data_dir=<dir>         Data directory for file backed stores.
    --store=<backend>        Store backend.
    --origins=<origins>      Comma separated CORS origins.
    --v=<level>              glog verbosity.
    --limit=<n>              Page size.
    --offset=<n>             Window start.
    --sort=<field>           Sort field, prefix with - for descending.
    --search=<q>             Free text search.
    --where=<field=value>    Filter, may be repeated.
    --attribute=<name>       Response attribute holding the records [default: data].
    --rps=<rps>              Client request pacing, 0 for none [default: 0].
    --page=<n>               Page number for pages.
    --path=<path>            Path segment appended to the endpoint.
    --config=<path>          YAML collections file.
    --concurrency=<n>        Collections fetched at once [default: 4].
    --debug                  Log request lifecycle.`

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// optString returns the option value, falling back when it is absent.
func optString(opts docopt.Opts, key, fallback string) string {
	if v, err := opts.String(key); err == nil && v != "" {
		return v
	}
	return fallback
}

func optInt(opts docopt.Opts, key string) (int, bool) {
	if _, ok := opts[key].(string); !ok {
		return 0, false
	}
	n, err := opts.Int(key)
	if err != nil {
		fatal(fmt.Errorf("%s: %w", key, err))
	}
	return n, true
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// corsMiddleware wraps an http.Handler with CORS headers.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	// Fast path: wildcard allows everything.
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range allowedOrigins {
				if strings.TrimSpace(o) == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	} else if list_, _ := opts.Bool("list"); list_ {
		list(opts)
	} else if pages_, _ := opts.Bool("pages"); pages_ {
		pages(opts)
	} else if url_, _ := opts.Bool("url"); url_ {
		showURL(opts)
	} else if sync_, _ := opts.Bool("sync"); sync_ {
		syncAll(opts)
	}
}

func serve(opts docopt.Opts) {
	// glog only reads its flags from the flag package.
	flag.Set("logtostderr", "true")
	flag.Set("v", optString(opts, "--v", "0"))
	defer glog.Flush()

	host := optString(opts, "--host", env("HOST", "0.0.0.0"))
	port := optString(opts, "--port", env("PORT", "8080"))
	dataDir := optString(opts, "--data_dir", env("DATA_DIR", "./data"))
	backend := optString(opts, "--store", env("STORE_BACKEND", "json"))
	origins := optString(opts, "--origins", env("ALLOWED_ORIGINS", "*"))

	s, err := store.New(backend, dataDir)
	if err != nil {
		glog.Fatalf("failed to create store (backend=%s): %v", backend, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", gzhttp.GzipHandler(handler.New(s)))
	wrapped := corsMiddleware(mux, strings.Split(origins, ","))

	addr := fmt.Sprintf("%s:%s", host, port)
	srv := &http.Server{Addr: addr, Handler: wrapped}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	glog.Infof("Collection server starting on %s (store=%s, data=%s)", addr, backend, dataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		glog.Fatalf("server error: %v", err)
	}
	if err := store.Close(s); err != nil {
		glog.Errorf("closing store: %v", err)
	}
	glog.Info("Collection server stopped")
}

// queryParams collects the query options shared by list and url.
func queryParams(opts docopt.Opts) collection.Params {
	p := collection.Params{}
	if n, ok := optInt(opts, "--limit"); ok {
		p[collection.ParamLimit] = n
	}
	if n, ok := optInt(opts, "--offset"); ok {
		p[collection.ParamOffset] = n
	}
	if v := optString(opts, "--sort", ""); v != "" {
		p[collection.ParamSort] = v
	}
	if v := optString(opts, "--search", ""); v != "" {
		p[collection.ParamSearch] = v
	}
	where, _ := opts["--where"].([]string)
	for _, kv := range where {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			fatal(fmt.Errorf("--where: expected field=value, got %q", kv))
		}
		p[k] = v
	}
	return p
}

func clientOptions(opts docopt.Opts, metrics collection.MetricsCollector) []collection.Option {
	rps, err := opts.Float64("--rps")
	if err != nil {
		rps = 0
	}
	level := slog.LevelWarn
	if debug, _ := opts.Bool("--debug"); debug {
		level = slog.LevelDebug
	}
	return []collection.Option{
		collection.WithTransport(transport.NewHTTP(transport.WithRateLimit(rps, 1))),
		collection.WithLogger(collection.NewTextLogger(level)),
		collection.WithMetrics(metrics),
	}
}

// newMetrics registers the collection metrics on a registry of their own.
func newMetrics() (collection.MetricsCollector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	pc, err := collection.NewPrometheusCollector(reg)
	if err != nil {
		fatal(err)
	}
	return pc, reg
}

// reportRequests prints the request counts gathered from g, one line per
// method and outcome.
func reportRequests(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if mf.GetName() != "collection_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			fmt.Fprintf(w, "requests %s %s: %d\n", labels["method"], labels["outcome"], int64(m.GetCounter().GetValue()))
		}
	}
	return nil
}

func printRecords(recs []*collection.Record) {
	for _, rec := range recs {
		b, err := gojson.Marshal(rec)
		if err != nil {
			fatal(err)
		}
		fmt.Println(string(b))
	}
}

func list(opts docopt.Opts) {
	endpoint, _ := opts.String("<endpoint>")
	metrics, reg := newMetrics()
	c, err := collection.New(collection.Settings{
		Endpoint:        endpoint,
		Params:          queryParams(opts),
		ResultAttribute: optString(opts, "--attribute", collection.DefaultResultAttribute),
	}, clientOptions(opts, metrics)...)
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	f, err := c.Fetch()
	if err != nil {
		fatal(err)
	}
	recs, err := f.Wait(context.Background())
	if debug, _ := opts.Bool("--debug"); debug {
		reportRequests(os.Stderr, reg)
	}
	if err != nil {
		fatal(err)
	}
	printRecords(recs)
}

func pages(opts docopt.Opts) {
	endpoint, _ := opts.String("<endpoint>")
	c, err := collection.New(collection.Settings{
		Endpoint: endpoint,
		Params:   queryParams(opts),
	}, collection.WithTransport(transport.Func(func(context.Context, *transport.Request) ([]byte, error) {
		return nil, errors.New("pages does not send requests")
	})))
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	fmt.Println("current:", c.URL())
	fmt.Println("prev:   ", c.URLPrev(0))
	fmt.Println("next:   ", c.URLNext(0))
	if n, ok := optInt(opts, "--page"); ok {
		fmt.Printf("page %d: %s\n", n, c.URLPage(n, 0))
	}
}

func showURL(opts docopt.Opts) {
	endpoint, _ := opts.String("<endpoint>")
	fmt.Println(collection.BuildURL(endpoint, optString(opts, "--path", ""), queryParams(opts)))
}

// syncAll fetches every configured collection concurrently and reports counts.
func syncAll(opts docopt.Opts) {
	path, _ := opts.String("--config")
	cfg, err := collection.LoadConfig(path)
	if err != nil {
		fatal(err)
	}
	concurrency, ok := optInt(opts, "--concurrency")
	if !ok || concurrency < 1 {
		concurrency = 1
	}

	metrics, reg := newMetrics()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err = syncCollections(ctx, cfg, concurrency, clientOptions(opts, metrics), os.Stdout)
	if rerr := reportRequests(os.Stdout, reg); rerr != nil {
		fmt.Fprintln(os.Stderr, "metrics:", rerr)
	}
	if err != nil {
		fatal(err)
	}
}

// syncCollections fetches each collection of cfg once, at most concurrency at
// a time, and writes the record count of every collection that loaded.
func syncCollections(ctx context.Context, cfg *collection.Config, concurrency int, options []collection.Option, out io.Writer) error {
	var (
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, name := range cfg.Names() {
		settings := cfg.Collections[name]
		settings.Autoload = false
		g.Go(func() error {
			c, err := collection.New(settings, slices.Concat(options, []collection.Option{collection.WithContext(ctx)})...)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			defer c.Close()
			f, err := c.Fetch()
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			recs, err := f.Wait(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			mu.Lock()
			counts[name] = len(recs)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	for _, name := range cfg.Names() {
		if n, ok := counts[name]; ok {
			fmt.Fprintf(out, "%s: %d records\n", name, n)
		}
	}
	return err
}
