package kgo

import (
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// domainRe validates domains: a label, and at least one dot-label.
var domainRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*(?:\.[a-z0-9]+(?:-[a-z0-9]+)*)+$`)

func isAddr(addr string) bool   { return net.ParseIP(addr) != nil }
func isDomain(domain string) bool {
	if len(domain) < 1 || len(domain) > 255 {
		return false
	}
	if domain == "localhost" {
		return true
	}
	return domainRe.MatchString(strings.ToLower(domain))
}

// Acks is the producer's required-acknowledgement level.
type Acks uint8

const (
	AcksLeader Acks = iota // default
	AcksNone
	AcksAll
)

// Opt is an option to configure a Client or Producer.
type Opt interface{ isOpt() }

// ClientOpt configures the cluster session (C6).
type ClientOpt interface {
	Opt
	applyClient(*clientCfg)
}

type clientOpt struct{ fn func(*clientCfg) }

func (clientOpt) isOpt()                    {}
func (o clientOpt) applyClient(c *clientCfg) { o.fn(c) }

// ProducerOpt configures the producer (C4).
type ProducerOpt interface {
	Opt
	applyProducer(*producerCfg)
}

type producerOpt struct{ fn func(*producerCfg) }

func (producerOpt) isOpt()                      {}
func (o producerOpt) applyProducer(c *producerCfg) { o.fn(c) }

// ProfileLoader is the external profile/config collaborator (out of
// core scope per SPEC_FULL §1): it resolves a named profile to SC/SPU
// endpoints. Direct ClientOpt endpoints override whatever a profile
// supplies.
type ProfileLoader interface {
	LoadProfile(name string) (scEndpoint, spuEndpoint string, err error)
}

// SASLMechanism is the extension point for broker authentication. sasl.go
// ships two concrete mechanisms callers may opt into, PlainMechanism and
// ScramSHA256Mechanism; GSSAPI is not implemented.
type SASLMechanism interface {
	Name() string
	// Authenticate drives one SASL exchange: it is handed the broker's
	// latest challenge (nil on the first call) and returns the client's
	// next response; done=true marks that response as the final one, which
	// the connection still sends before ending the exchange.
	Authenticate(challenge []byte) (response []byte, done bool, err error)
}

type clientCfg struct {
	scEndpoint  string
	spuEndpoint string
	profile     string
	profileLoader ProfileLoader

	tlsCfg *tls.Config
	sasl   SASLMechanism

	minPlatformVersion string
	requestTimeout     time.Duration
	metadataTTL        time.Duration

	logger Logger
}

func defaultClientCfg() clientCfg {
	return clientCfg{
		minPlatformVersion: "0.9.0",
		requestTimeout:     5 * time.Second,
		metadataTTL:        5 * time.Minute,
		logger:             nopLogger{},
	}
}

func (cfg *clientCfg) validate() error {
	if cfg.scEndpoint != "" {
		if err := validateEndpoint(cfg.scEndpoint); err != nil {
			return fmt.Errorf("sc endpoint: %w", err)
		}
	}
	if cfg.spuEndpoint != "" {
		if err := validateEndpoint(cfg.spuEndpoint); err != nil {
			return fmt.Errorf("spu endpoint: %w", err)
		}
	}
	if _, err := ParseVersion(cfg.minPlatformVersion); err != nil {
		return fmt.Errorf("minimum platform version: %w", err)
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	host := endpoint
	if colon := strings.LastIndexByte(endpoint, ':'); colon > 0 {
		host = endpoint[:colon]
		if _, err := strconv.Atoi(endpoint[colon+1:]); err != nil {
			return fmt.Errorf("invalid port in %q", endpoint)
		}
	}
	if !isAddr(host) && !isDomain(host) {
		return fmt.Errorf("%q is neither an IP address nor a domain", host)
	}
	return nil
}

// WithSeedEndpoint sets the SPU endpoint directly, overriding any profile.
func WithSeedEndpoint(addr string) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.spuEndpoint = addr }}
}

// WithSCEndpoint sets the Stream Controller endpoint directly, overriding
// any profile.
func WithSCEndpoint(addr string) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.scEndpoint = addr }}
}

// WithProfile names an external profile to resolve endpoints from via
// loader; explicit WithSeedEndpoint/WithSCEndpoint still win if both are
// given.
func WithProfile(name string, loader ProfileLoader) ClientOpt {
	return clientOpt{func(c *clientCfg) {
		c.profile = name
		c.profileLoader = loader
	}}
}

// WithTLS enables TLS on all connections using cfg.
func WithTLS(cfg *tls.Config) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.tlsCfg = cfg }}
}

// WithSASL enables SASL authentication using the given mechanism.
func WithSASL(mechanism SASLMechanism) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.sasl = mechanism }}
}

// WithMinPlatformVersion overrides the minimum supported cluster platform
// version, default "0.9.0".
func WithMinPlatformVersion(version string) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.minPlatformVersion = version }}
}

// WithRequestTimeout overrides the per-request deadline, default 5s.
func WithRequestTimeout(d time.Duration) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.requestTimeout = d }}
}

// WithMetadataTTL overrides the metadata cache's staleness TTL, default
// 5 minutes.
func WithMetadataTTL(d time.Duration) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.metadataTTL = d }}
}

// WithLogger installs a Logger; the default discards all log output.
func WithLogger(l Logger) ClientOpt {
	return clientOpt{func(c *clientCfg) { c.logger = l }}
}

type producerCfg struct {
	batchSize       int
	linger          time.Duration
	maxRequestSize  int
	timeout         time.Duration
	compression     Compression
	acks            Acks
	retries         int
	partitioner     Partitioner
}

func defaultProducerCfg() producerCfg {
	return producerCfg{
		batchSize:      1000,
		linger:         100 * time.Millisecond,
		maxRequestSize: 1 << 20,
		timeout:        5 * time.Second,
		compression:    CompressionNone,
		acks:           AcksLeader,
		retries:        3,
		partitioner:    NewHashRoundRobinPartitioner(),
	}
}

func (cfg *producerCfg) validate() error {
	if cfg.batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.batchSize)
	}
	if cfg.maxRequestSize <= 0 {
		return fmt.Errorf("max request size must be positive, got %d", cfg.maxRequestSize)
	}
	if cfg.retries < 0 {
		return fmt.Errorf("retries must be non-negative, got %d", cfg.retries)
	}
	return nil
}

// WithBatchSize overrides the record count that triggers a batch flush,
// default 1000. A value of 0 means "use the default".
func WithBatchSize(n int) ProducerOpt {
	return producerOpt{func(c *producerCfg) {
		if n != 0 {
			c.batchSize = n
		}
	}}
}

// WithLinger overrides the max age of a batch's oldest record before it's
// flushed, default 100ms. Per the design notes' open question, a zero
// value is treated as unset (collapses to the default), matching observed
// broker-client behavior rather than "send immediately".
func WithLinger(d time.Duration) ProducerOpt {
	return producerOpt{func(c *producerCfg) {
		if d != 0 {
			c.linger = d
		}
	}}
}

// WithMaxRequestSize overrides the hard cap on a serialized Produce
// payload, default 1MiB.
func WithMaxRequestSize(n int) ProducerOpt {
	return producerOpt{func(c *producerCfg) {
		if n != 0 {
			c.maxRequestSize = n
		}
	}}
}

// WithProduceTimeout overrides the per-request deadline, default 5s.
func WithProduceTimeout(d time.Duration) ProducerOpt {
	return producerOpt{func(c *producerCfg) {
		if d != 0 {
			c.timeout = d
		}
	}}
}

// WithCompression selects the record-batch compression codec, default
// CompressionNone.
func WithCompression(c Compression) ProducerOpt {
	return producerOpt{func(cfg *producerCfg) { cfg.compression = c }}
}

// WithAcks selects the required-acknowledgement level, default
// AcksLeader.
func WithAcks(a Acks) ProducerOpt {
	return producerOpt{func(c *producerCfg) { c.acks = a }}
}

// WithRetries overrides the number of retries for transient errors,
// default 3.
func WithRetries(n int) ProducerOpt {
	return producerOpt{func(c *producerCfg) { c.retries = n }}
}

// WithPartitioner overrides the partition-selection strategy, default
// NewHashRoundRobinPartitioner().
func WithPartitioner(p Partitioner) ProducerOpt {
	return producerOpt{func(c *producerCfg) { c.partitioner = p }}
}
