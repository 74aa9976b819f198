package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/erikbos/stashfin/admin"
	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/config"
	"github.com/erikbos/stashfin/database"
	"github.com/erikbos/stashfin/imageresize"
	"github.com/erikbos/stashfin/ipban"
	"github.com/erikbos/stashfin/jellyfin"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/metrics"
	"github.com/erikbos/stashfin/muxnormalizer"
	"github.com/erikbos/stashfin/playback"
	"github.com/erikbos/stashfin/stash"
)

const (
	databaseFile    = "stashfin.db"
	shutdownTimeout = 10 * time.Second
)

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	configFile := flags.String("config", "stashfin.yaml", "Path of the configuration file.")
	flags.Int("port", 0, "Port to listen on.")
	flags.String("loglevel", "", "Log level: trace, debug, info, warn or error.")
	flags.String("logfile", "", "Path of logfile. Use 'stdout' for standard output, or 'none' to disable logging.")
	_ = flags.Parse(os.Args[1:])

	store, err := config.Load(*configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(store); err != nil {
		log := logging.Base()
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(store *config.Store) error {
	cfg := store.Get()

	output, closeLog, err := logging.OpenOutput(cfg.Logfile)
	if err != nil {
		return fmt.Errorf("opening logfile: %w", err)
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel, Output: output})
	log := logging.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := stash.New(stash.Options{
		URL:        cfg.Stash.URL,
		ApiKey:     cfg.Stash.ApiKey,
		Timeout:    cfg.Stash.Timeout,
		MaxRetries: cfg.Stash.MaxRetries,
	})
	if err != nil {
		return err
	}
	browser := catalog.New(client, catalogSettings(cfg))

	repo, err := database.New(&database.Options{
		Filename: filepath.Join(cfg.DataDir, databaseFile),
	})
	if err != nil {
		return err
	}
	repo.StartBackgroundJobs(ctx)

	tracker := playback.New(playback.Options{
		Store: repo,
		Info:  sceneInfo(browser),
	})
	if err := tracker.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("could not load statistics, starting empty")
	}
	go tracker.Run(ctx)

	bans := ipban.New(ipban.Options{
		Store:     repo,
		Threshold: cfg.Auth.BanThreshold,
		Window:    cfg.Auth.BanWindow,
	})
	if err := bans.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("could not load bans")
	}

	resizer, err := imageresize.New(imageresize.Options{Quality: cfg.Images.Quality})
	if err != nil {
		return err
	}

	j, err := jellyfin.New(&jellyfin.Options{
		Catalog:      browser,
		Upstream:     client,
		Tokens:       repo,
		Tracker:      tracker,
		Bans:         bans,
		Imageresizer: resizer,
		ServerID:     cfg.Jellyfin.ServerID,
		ServerName:   cfg.Jellyfin.ServerName,
		Username:     cfg.Jellyfin.Username,
		Password:     cfg.Jellyfin.Password,
		PadImages:    cfg.Images.Pad,
	})
	if err != nil {
		return err
	}

	restart := make(chan struct{}, 1)
	a := admin.New(admin.Options{
		Config:  store,
		Backend: client,
		Tracker: tracker,
		Bans:    bans,
		Logs:    logging.Recent(),
		Restart: func() {
			select {
			case restart <- struct{}{}:
			default:
			}
		},
		Started: time.Now(),
	})

	store.Subscribe(func(c config.Config) {
		logging.SetLevel(c.LogLevel)
		browser.Reconfigure(catalogSettings(c))
		j.Reconfigure(c.Jellyfin.ServerName, c.Images.Pad)
		bans.Reconfigure(c.Auth.BanThreshold, c.Auth.BanWindow)
	})

	log.Info().Msg("building mux")

	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	a.RegisterHandlers(r)
	j.RegisterHandlers(r)

	normalizer, err := muxnormalizer.New(r, "/emby", "/jellyfin")
	if err != nil {
		return fmt.Errorf("indexing routes: %w", err)
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Accept", "Authorization", "Content-Type", "Range",
			"X-Emby-Authorization", "X-Emby-Token", "X-MediaBrowser-Token", "X-Admin-Token"}),
		handlers.ExposedHeaders([]string{"Content-Range", "Accept-Ranges", "ETag"}),
	)
	proxies, err := newTrustedProxies(cfg.Listen.TrustedProxies)
	if err != nil {
		return err
	}
	handler := HttpLog(proxies.Middleware(j.BanGate(cors(normalizer.Middleware(r)))))

	addr := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errc := make(chan error, 1)
	if cfg.Listen.TlsCert != "" && cfg.Listen.TlsKey != "" {
		kpr, err := NewKeypairReloader(ctx, cfg.Listen.TlsCert, cfg.Listen.TlsKey)
		if err != nil {
			return fmt.Errorf("loading keypair: %w", err)
		}
		srv.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: kpr.GetCertificateFunc(),
		}
		log.Info().Str("addr", addr).Msg("serving HTTPS")
		go func() { errc <- srv.ListenAndServeTLS("", "") }()
	} else {
		log.Info().Str("addr", addr).Msg("serving HTTP")
		go func() { errc <- srv.ListenAndServe() }()
	}

	restarting := false
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case <-restart:
		restarting = true
		log.Info().Msg("restarting")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdown(log, nil, tracker, bans, repo)
			return err
		}
	}

	shutdown(log, srv, tracker, bans, repo)
	if restarting {
		_ = closeLog()
		return reexec()
	}
	return closeLog()
}

type flusher interface {
	Flush(ctx context.Context) error
}

// shutdown stops the http server and writes pending state to storage.
func shutdown(log zerolog.Logger, srv *http.Server, tracker, bans flusher, repo database.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
	}
	if err := tracker.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("could not save statistics")
	}
	if err := bans.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("could not save bans")
	}
	if err := repo.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

// reexec replaces the running process with a fresh copy of the binary.
func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}

func catalogSettings(c config.Config) catalog.Settings {
	s := catalog.Settings{
		TagGroups: c.Library.TagGroups,
		Latest:    c.Library.Latest,
	}
	for _, name := range c.Library.Collections {
		s.Collections = append(s.Collections, catalog.Collection(name))
	}
	for _, name := range c.Library.Filters {
		s.FilterModes = append(s.FilterModes, catalog.Collection(name))
	}
	return s
}

// sceneInfo resolves the stream details shown for a newly started stream.
func sceneInfo(b *catalog.Browser) playback.InfoFunc {
	return func(ctx context.Context, sceneID string) playback.SceneInfo {
		m, err := b.Scene(ctx, sceneID)
		if err != nil {
			return playback.SceneInfo{Title: catalog.MediaItem{ID: sceneID}.DisplayTitle()}
		}
		names := make([]string, 0, len(m.Performers))
		for _, p := range m.Performers {
			names = append(names, p.Name)
		}
		return playback.SceneInfo{
			Title:      m.DisplayTitle(),
			Performers: strings.Join(names, ", "),
			Duration:   time.Duration(m.Duration * float64(time.Second)),
		}
	}
}

type keypairReloader struct {
	certMu   sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
	log      zerolog.Logger
}

// NewKeypairReloader creates a new keypair reloader that will reload the TLS certificate
// and key from the specified paths every 15 seconds until ctx is done. If the certificate
// cannot be loaded, it will log an error and keep the old certificate in use.
func NewKeypairReloader(ctx context.Context, certPath, keyPath string) (*keypairReloader, error) {
	result := &keypairReloader{
		certPath: certPath,
		keyPath:  keyPath,
		log:      logging.WithComponent("tls"),
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	result.cert = &cert

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := result.maybeReload(); err != nil {
					result.log.Warn().Err(err).Msg("keeping old TLS certificate because the new one could not be loaded")
				}
			}
		}
	}()
	return result, nil
}

func (kpr *keypairReloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		kpr.certMu.RLock()
		defer kpr.certMu.RUnlock()
		return kpr.cert, nil
	}
}

func (kpr *keypairReloader) maybeReload() error {
	newCert, err := tls.LoadX509KeyPair(kpr.certPath, kpr.keyPath)
	if err != nil {
		return err
	}
	kpr.certMu.Lock()
	defer kpr.certMu.Unlock()
	kpr.cert = &newCert
	return nil
}
