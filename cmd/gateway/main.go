// Package main implements the RDP gateway: a WebSocket bridge that drives
// the sans-I/O connector/session engine against an upstream RDP server
// and relays its output to a browser client.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-rdp-core/internal/logging"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
)

var (
	appName    = "Go RDP Gateway"
	appVersion = "dev" // injected at build time via -ldflags
)

func main() {
	args, action := parseFlags()
	if action != "" {
		return
	}
	if err := run(args); err != nil {
		log.Fatalln(err)
	}
}

type parsedArgs struct {
	host          string
	port          string
	logLevel      string
	skipTLS       bool
	tlsServerName string
	useNLA        bool
}

//go:noinline
func parseFlags() (parsedArgs, string) {
	return parseFlagsWithArgs(os.Args[1:])
}

func parseFlagsWithArgs(args []string) (parsedArgs, string) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	hostFlag := fs.String("host", "", "gateway listen host")
	portFlag := fs.String("port", "", "gateway listen port")
	logLevelFlag := fs.String("log-level", "", "log level (debug, info, warn, error)")
	skipTLS := fs.Bool("tls-skip-verify", false, "skip upstream TLS certificate validation")
	tlsServerName := fs.String("tls-server-name", "", "override upstream TLS server name")
	useNLA := fs.Bool("nla", false, "enable Network Level Authentication (NLA/CredSSP) by default")
	helpFlag := fs.Bool("help", false, "show help")
	versionFlag := fs.Bool("version", false, "show version")

	_ = fs.Parse(args)

	if *helpFlag {
		showHelp()
		return parsedArgs{}, "help"
	}
	if *versionFlag {
		showVersion()
		return parsedArgs{}, "version"
	}

	return parsedArgs{
		host:          strings.TrimSpace(*hostFlag),
		port:          strings.TrimSpace(*portFlag),
		logLevel:      strings.TrimSpace(*logLevelFlag),
		skipTLS:       *skipTLS,
		tlsServerName: strings.TrimSpace(*tlsServerName),
		useNLA:        *useNLA,
	}, ""
}

func run(args parsedArgs) error {
	gw, err := rdpconfig.LoadWithOverrides(rdpconfig.LoadOptions{
		Host:              args.host,
		Port:              args.port,
		LogLevel:          args.logLevel,
		SkipTLSValidation: args.skipTLS,
		TLSServerName:     args.tlsServerName,
		UseNLA:            args.useNLA,
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(gw.Logging)
	log := logging.Default()

	server := createServer(gw, log)
	log.Info("Starting gateway on %s:%s (TLS=%t, NLA=%t)", gw.Server.Host, gw.Server.Port, gw.Security.EnableTLS, gw.Security.UseNLA)

	if err := startServer(server, gw); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func createServer(gw *rdpconfig.Gateway, log *logging.Logger) *http.Server {
	addr := net.JoinHostPort(gw.Server.Host, gw.Server.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(gw, log))
	mux.HandleFunc("/healthz", healthHandler)

	h := applySecurityMiddleware(http.Handler(mux), gw)
	h = requestLoggingMiddleware(h, log)

	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  gw.Server.ReadTimeout,
		WriteTimeout: gw.Server.WriteTimeout,
		IdleTimeout:  gw.Server.IdleTimeout,
	}
}

func wsHandler(gw *rdpconfig.Gateway, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("gateway: websocket upgrade from %s: %v", r.RemoteAddr, err)
			return
		}
		defer func() { _ = ws.Close() }()

		if err := bridgeConnection(ws, gw, log); err != nil {
			log.Error("gateway: session from %s ended: %v", r.RemoteAddr, err)
		}
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func applySecurityMiddleware(next http.Handler, gw *rdpconfig.Gateway) http.Handler {
	h := next
	if gw.Security.EnableRateLimit {
		h = rateLimitMiddleware(h, gw.Security.RateLimitPerMinute)
	}
	h = corsMiddleware(h, gw.Security.AllowedOrigins)
	h = securityHeadersMiddleware(h)
	return h
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed reports whether origin may open a WebSocket session.
// An empty allowlist only permits same-origin-style requests to pass
// through unheadered (the browser enforces same-origin itself); a
// non-empty allowlist is matched exactly, "*" excepted.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type rateLimiter struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	last     time.Time
}

func newRateLimiter(ratePerMinute int) *rateLimiter {
	capacity := float64(ratePerMinute)
	if capacity <= 0 {
		capacity = 1
	}
	return &rateLimiter{capacity: capacity, tokens: capacity, last: time.Now()}
}

func (rl *rateLimiter) allow(now time.Time, refillPerSecond float64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	elapsed := now.Sub(rl.last).Seconds()
	if elapsed > 0 {
		rl.tokens += elapsed * refillPerSecond
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.last = now
	}
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

func rateLimitMiddleware(next http.Handler, ratePerMinute int) http.Handler {
	refillPerSecond := float64(ratePerMinute) / 60.0
	var clients sync.Map

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ratePerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}

		value, _ := clients.LoadOrStore(key, newRateLimiter(ratePerMinute))
		limiter := value.(*rateLimiter)
		if !limiter.allow(time.Now(), refillPerSecond) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setupLogging(cfg rdpconfig.LoggingConfig) {
	log.SetFlags(log.LstdFlags | log.LUTC)
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	logging.SetLevelFromString(level)
}

func requestLoggingMiddleware(next http.Handler, logger *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("%s %s %s %s", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}

func startServer(server *http.Server, _ *rdpconfig.Gateway) error {
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: gateway [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -host               Set gateway listen host (default 0.0.0.0)")
	fmt.Println("  -port               Set gateway listen port (default 8080)")
	fmt.Println("  -log-level          Set log level (debug, info, warn, error)")
	fmt.Println("  -tls-skip-verify    Skip upstream TLS certificate validation")
	fmt.Println("  -tls-server-name    Override upstream TLS server name (SNI)")
	fmt.Println("  -nla                Enable Network Level Authentication by default")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help               Show this help message")
	fmt.Println("ENVIRONMENT VARIABLES: SERVER_HOST, SERVER_PORT, LOG_LEVEL, SKIP_TLS_VALIDATION, TLS_SERVER_NAME, USE_NLA")
	fmt.Println("A connection is requested by opening a WebSocket at /ws and sending a JSON connect request as the first message.")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
}
