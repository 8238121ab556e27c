// Package config loads the YAML configuration shared by the memoproof
// commands.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/receipt/storeconfig"
	"xdao.co/memoproof/verify"
)

type Config struct {
	// Cluster labels receipts (e.g. "devnet", "mainnet-beta").
	Cluster  string             `yaml:"cluster"`
	RPC      RPCConfig          `yaml:"rpc"`
	Verify   VerifyConfig       `yaml:"verify"`
	Receipts storeconfig.Config `yaml:"receipts"`
	Log      LogConfig          `yaml:"log"`
	HTTP     HTTPConfig         `yaml:"http"`
	Keys     KeysConfig         `yaml:"keys"`
}

type RPCConfig struct {
	Endpoint   string            `yaml:"endpoint"`
	Commitment string            `yaml:"commitment"`
	Encoding   string            `yaml:"encoding"`
	Timeout    time.Duration     `yaml:"timeout"`
	CacheSize  int               `yaml:"cache_size"`
	Headers    map[string]string `yaml:"headers"`
}

type VerifyConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	ScanLimit    int           `yaml:"scan_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// KeysConfig selects the fee payer.
type KeysConfig struct {
	Directory  string `yaml:"directory"`
	Identifier string `yaml:"identifier"`
	Label      string `yaml:"label"`
	// KeypairFile is a ledger CLI keypair file; it takes precedence over
	// Identifier.
	KeypairFile string `yaml:"keypair_file"`
}

func Default() Config {
	return Config{
		Cluster: "devnet",
		RPC: RPCConfig{
			Endpoint:   "https://api.devnet.solana.com",
			Commitment: chainrpc.CommitmentConfirmed,
			Encoding:   chainrpc.EncodingBase64,
			Timeout:    30 * time.Second,
			CacheSize:  1024,
		},
		Verify: VerifyConfig{
			PollInterval: verify.DefaultPollInterval,
			PollAttempts: verify.DefaultPollAttempts,
			InitialDelay: 2 * time.Second,
			ScanLimit:    verify.DefaultScanLimit,
		},
		Receipts: storeconfig.Config{
			Backends: []storeconfig.BackendConfig{{Name: "memory"}},
		},
		Log: LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Listen:          "127.0.0.1:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			MaxUploadBytes:  64 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fault.Wrap(fault.KindConfig, "MEMO-CFG-001", "read config", err)
	}
	if err := Parse(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML into cfg, keeping values the document does not set.
func Parse(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fault.Wrap(fault.KindConfig, "MEMO-CFG-002", "parse config", err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fault.New(fault.KindConfig, "MEMO-CFG-010", "rpc.endpoint is required")
	}
	switch c.RPC.Commitment {
	case chainrpc.CommitmentProcessed, chainrpc.CommitmentConfirmed, chainrpc.CommitmentFinalized:
	default:
		return fault.New(fault.KindConfig, "MEMO-CFG-011", fmt.Sprintf("rpc.commitment %q is not one of processed, confirmed, finalized", c.RPC.Commitment))
	}
	switch c.RPC.Encoding {
	case chainrpc.EncodingBase64, chainrpc.EncodingJSON:
	default:
		return fault.New(fault.KindConfig, "MEMO-CFG-012", fmt.Sprintf("rpc.encoding %q is not one of base64, json", c.RPC.Encoding))
	}
	if c.RPC.CacheSize < 0 {
		return fault.New(fault.KindConfig, "MEMO-CFG-013", "rpc.cache_size must not be negative")
	}
	if c.Verify.PollInterval <= 0 || c.Verify.PollAttempts <= 0 {
		return fault.New(fault.KindConfig, "MEMO-CFG-020", "verify.poll_interval and verify.poll_attempts must be positive")
	}
	if c.Verify.InitialDelay < 0 {
		return fault.New(fault.KindConfig, "MEMO-CFG-021", "verify.initial_delay must not be negative")
	}
	if c.Verify.ScanLimit <= 0 || c.Verify.ScanLimit > ledger.MaxSignaturesForAddress {
		return fault.New(fault.KindConfig, "MEMO-CFG-022", fmt.Sprintf("verify.scan_limit must be in 1..%d", ledger.MaxSignaturesForAddress))
	}
	if err := c.Receipts.Validate(); err != nil {
		return fault.Wrap(fault.KindConfig, "MEMO-CFG-030", "receipts", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fault.New(fault.KindConfig, "MEMO-CFG-041", fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	return nil
}

// ChainOptions maps the rpc section onto chainrpc.Options.
func (c Config) ChainOptions() chainrpc.Options {
	return chainrpc.Options{
		Commitment: c.RPC.Commitment,
		Encoding:   c.RPC.Encoding,
		Timeout:    c.RPC.Timeout,
		CacheSize:  c.RPC.CacheSize,
		Headers:    c.RPC.Headers,
	}
}

// Apply copies the verify section onto e.
func (v VerifyConfig) Apply(e *verify.Engine) {
	e.PollInterval = v.PollInterval
	e.PollAttempts = v.PollAttempts
	e.ScanLimit = v.ScanLimit
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fault.New(fault.KindConfig, "MEMO-CFG-040", fmt.Sprintf("log.level %q is not one of debug, info, warn, error", s))
	}
}

// NewLogger builds the process logger described by l.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
