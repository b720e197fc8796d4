// Package rdpconfig holds the configuration surfaces the core and its host
// tools read. Connector is the plain struct callers populate (security
// protocol, credentials, desktop size, keyboard, graphics, bitmap, pointer,
// performance flags) and pass directly to connector.New; it has no
// environment-variable loader of its own, since the sans-I/O core is a
// library, not a process. Load/LoadWithOverrides are the env-var-driven
// process configuration for cmd/gateway, the actual owner of a process
// environment.
package rdpconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
)

// SecurityProtocol selects the security layer negotiated during connection
// initiation.
type SecurityProtocol uint8

const (
	SecurityProtocolSSL SecurityProtocol = iota
	SecurityProtocolHybrid
	SecurityProtocolHybridEx
)

func (p SecurityProtocol) wire() pdu.NegotiationProtocol {
	switch p {
	case SecurityProtocolHybrid:
		return pdu.NegotiationProtocolHybrid
	case SecurityProtocolHybridEx:
		return pdu.NegotiationProtocolHybridEx
	default:
		return pdu.NegotiationProtocolSSL
	}
}

// Wire returns the MS-RDPBCGR negotiation protocol bit for this selection.
func (p SecurityProtocol) Wire() pdu.NegotiationProtocol { return p.wire() }

// CredentialKind selects the credential provider the host supplies to the
// connector's Credssp step.
type CredentialKind uint8

const (
	CredentialUsernamePassword CredentialKind = iota
	CredentialSmartCard
	CredentialTokenDelegation
)

// Credentials carries whichever fields Kind requires; the connector treats
// these as opaque and only forwards them to the CredSSP collaborator.
type Credentials struct {
	Kind     CredentialKind
	Domain   string
	Username string
	Password string
	PIN      string // CredentialSmartCard
	Token    []byte // CredentialTokenDelegation
}

// DesktopSize is the requested client desktop resolution.
type DesktopSize struct {
	Width  uint16
	Height uint16
}

// KeyboardType mirrors MS-RDPBCGR's TS_UD_CS_CORE keyboardType enumeration.
type KeyboardType uint32

const (
	KeyboardIbmPcXt     KeyboardType = 1
	KeyboardOlivettiIco KeyboardType = 2
	KeyboardIbmPcAt     KeyboardType = 3
	KeyboardIbmEnhanced KeyboardType = 4
	KeyboardNokia1050   KeyboardType = 5
	KeyboardNokia9140   KeyboardType = 6
	KeyboardJapanese    KeyboardType = 7
)

// Keyboard describes the client keyboard advertised in Client Core Data.
type Keyboard struct {
	Type           KeyboardType
	SubType        uint32
	LayoutID       uint32
	FunctionalKeys uint32
}

// DefaultKeyboard returns the client core data values advertised when the
// caller does not override the keyboard.
func DefaultKeyboard() Keyboard {
	return Keyboard{
		Type:           KeyboardIbmEnhanced,
		SubType:        0,
		LayoutID:       0x00000409, // US
		FunctionalKeys: 12,
	}
}

// Graphics is the optional graphics pipeline configuration; a nil pointer
// in Connector means "use the server's defaults, no RemoteFX/AVC".
type Graphics struct {
	AVC444         bool
	H264           bool
	ThinClient     bool
	SmallCache     bool
	CapabilityBits uint32
}

// Bitmap is the optional legacy bitmap codec configuration.
type Bitmap struct {
	ColorDepth       uint16 // 16 or 32
	LossyCompression bool
}

// Pointer controls cursor handling.
type Pointer struct {
	EnableServerPointer bool
	SoftwareRendering   bool
}

// PerformanceFlag is a TS_UD_CS_CORE-style performance flag bit the client
// advertises to let the server skip expensive effects.
type PerformanceFlag uint32

const (
	PerfDisableWallpaper    PerformanceFlag = 0x00000001
	PerfDisableFullWindow   PerformanceFlag = 0x00000002
	PerfDisableMenuAnims    PerformanceFlag = 0x00000004
	PerfDisableTheming      PerformanceFlag = 0x00000008
	PerfDisableCursorShadow PerformanceFlag = 0x00000020
	PerfDisableCursorBlink  PerformanceFlag = 0x00000040
	PerfEnableFontSmoothing PerformanceFlag = 0x00000080
	PerfEnableDesktopComp   PerformanceFlag = 0x00000100
)

// Connector is the connector's configuration surface: the caller
// populates it before calling connector.New.
type Connector struct {
	SecurityProtocol SecurityProtocol
	Credentials      Credentials
	DesktopSize      DesktopSize
	Keyboard         Keyboard
	Graphics         *Graphics
	Bitmap           *Bitmap
	Pointer          Pointer
	PerformanceFlags PerformanceFlag

	// AllowSecurityDowngrade permits the connector to accept SSL when
	// HybridEx was requested and the server only offers SSL; off by
	// default since it weakens the negotiated protocol.
	AllowSecurityDowngrade bool

	// ClientName is advertised in Client Core Data; defaults to the
	// module's project name when empty.
	ClientName string
}

// DefaultConnector returns a Connector with the defaults most servers
// accept: SSL security, a 1024x768 desktop, 32bpp bitmap, the IBM
// enhanced keyboard, and server-side pointer rendering.
func DefaultConnector() Connector {
	return Connector{
		SecurityProtocol: SecurityProtocolSSL,
		DesktopSize:      DesktopSize{Width: 1024, Height: 768},
		Keyboard:         DefaultKeyboard(),
		Bitmap:           &Bitmap{ColorDepth: 32},
		Pointer:          Pointer{EnableServerPointer: true},
	}
}

// Validate checks the fields the connector's steps rely on being sane
// before it starts emitting bytes.
func (c Connector) Validate() error {
	if c.DesktopSize.Width == 0 || c.DesktopSize.Height == 0 {
		return fmt.Errorf("rdpconfig: desktop size must be positive, got %dx%d", c.DesktopSize.Width, c.DesktopSize.Height)
	}
	if c.Bitmap != nil && c.Bitmap.ColorDepth != 16 && c.Bitmap.ColorDepth != 32 {
		return fmt.Errorf("rdpconfig: bitmap color depth must be 16 or 32, got %d", c.Bitmap.ColorDepth)
	}
	return nil
}

// --- process configuration for cmd/gateway ---

// Gateway holds the gateway host process's configuration: listener,
// upstream RDP defaults, and TLS/security knobs. This is process
// configuration, not core configuration; it owns the environment.
type Gateway struct {
	Server   ServerConfig
	RDP      RDPConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// LoadOptions holds command-line override options for LoadWithOverrides.
type LoadOptions struct {
	Host              string
	Port              string
	LogLevel          string
	SkipTLSValidation bool
	TLSServerName     string
	UseNLA            bool
}

// ServerConfig holds the gateway's own listener configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RDPConfig holds the gateway's default upstream RDP connection parameters.
type RDPConfig struct {
	DefaultWidth  int
	DefaultHeight int
	MaxWidth      int
	MaxHeight     int
	BufferSize    int
	Timeout       time.Duration
}

// SecurityConfig holds the gateway's TLS and NLA defaults.
type SecurityConfig struct {
	AllowedOrigins     []string
	MaxConnections     int
	EnableRateLimit    bool
	RateLimitPerMinute int
	EnableTLS          bool
	TLSCertFile        string
	TLSKeyFile         string
	MinTLSVersion      string
	SkipTLSValidation  bool
	TLSServerName      string
	UseNLA             bool
}

// LoggingConfig holds the gateway's logging configuration.
type LoggingConfig struct {
	Level        string
	Format       string
	EnableCaller bool
	File         string
}

// Load loads gateway configuration from environment variables with defaults.
func Load() (*Gateway, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads gateway configuration, applying opts over the
// environment, which is applied over built-in defaults.
func LoadWithOverrides(opts LoadOptions) (*Gateway, error) {
	cfg := &Gateway{}

	cfg.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", "0.0.0.0")
	cfg.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", "8080")
	cfg.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	cfg.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	cfg.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", 120*time.Second)

	cfg.RDP.DefaultWidth = getIntWithDefault("RDP_DEFAULT_WIDTH", 1024)
	cfg.RDP.DefaultHeight = getIntWithDefault("RDP_DEFAULT_HEIGHT", 768)
	cfg.RDP.MaxWidth = getIntWithDefault("RDP_MAX_WIDTH", 3840)
	cfg.RDP.MaxHeight = getIntWithDefault("RDP_MAX_HEIGHT", 2160)
	cfg.RDP.BufferSize = getIntWithDefault("RDP_BUFFER_SIZE", 65536)
	cfg.RDP.Timeout = getDurationWithDefault("RDP_TIMEOUT", 10*time.Second)

	cfg.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", []string{})
	cfg.Security.MaxConnections = getIntWithDefault("MAX_CONNECTIONS", 100)
	cfg.Security.EnableRateLimit = getBoolWithDefault("ENABLE_RATE_LIMIT", true)
	cfg.Security.RateLimitPerMinute = getIntWithDefault("RATE_LIMIT_PER_MINUTE", 60)
	cfg.Security.EnableTLS = getBoolWithDefault("ENABLE_TLS", false)
	cfg.Security.TLSCertFile = getEnvWithDefault("TLS_CERT_FILE", "")
	cfg.Security.TLSKeyFile = getEnvWithDefault("TLS_KEY_FILE", "")
	cfg.Security.MinTLSVersion = getEnvWithDefault("MIN_TLS_VERSION", "1.2")
	cfg.Security.SkipTLSValidation = getBoolWithDefault("SKIP_TLS_VALIDATION", false) || opts.SkipTLSValidation
	cfg.Security.TLSServerName = getOverrideOrEnv(opts.TLSServerName, "TLS_SERVER_NAME", "")
	cfg.Security.UseNLA = getBoolWithDefault("USE_NLA", true) || opts.UseNLA

	cfg.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvWithDefault("LOG_FORMAT", "text")
	cfg.Logging.EnableCaller = getBoolWithDefault("LOG_ENABLE_CALLER", false)
	cfg.Logging.File = getEnvWithDefault("LOG_FILE", "")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the gateway configuration for obviously broken values.
func (c *Gateway) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}
	if c.RDP.DefaultWidth <= 0 || c.RDP.DefaultHeight <= 0 {
		return fmt.Errorf("default dimensions must be positive")
	}
	if c.RDP.MaxWidth < c.RDP.DefaultWidth || c.RDP.MaxHeight < c.RDP.DefaultHeight {
		return fmt.Errorf("max dimensions must be >= default dimensions")
	}
	if c.RDP.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.Security.EnableTLS {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS certificate and key files must be specified when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", c.Security.TLSCertFile)
		}
		if _, err := os.Stat(c.Security.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", c.Security.TLSKeyFile)
		}
	}
	if c.Security.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.Security.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Connector builds the core's Connector configuration from the gateway's
// RDP defaults, the one place process configuration is translated into
// the library's configuration surface.
func (c *Gateway) Connector() Connector {
	conn := DefaultConnector()
	conn.DesktopSize = DesktopSize{Width: uint16(c.RDP.DefaultWidth), Height: uint16(c.RDP.DefaultHeight)} // #nosec G115
	if c.Security.UseNLA {
		conn.SecurityProtocol = SecurityProtocolHybrid
	}
	return conn
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
