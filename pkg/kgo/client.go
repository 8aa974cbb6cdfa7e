package kgo

import (
	"context"
	"sync"
	"time"

	"github.com/fluvio-go/fluvio/pkg/ferr"
	"github.com/fluvio-go/fluvio/pkg/kmsg"
)

// clientSoftwareName/Version identify this client in the ApiVersions
// handshake, the way a real client reports its own build.
const (
	clientSoftwareName    = "fluvio-go"
	clientSoftwareVersion = "0.1.0"
)

// topicMeta is the cached partition/leader layout for one topic, refreshed
// on TTL expiry or on UnknownTopicOrPartition / LeaderNotAvailable, per the
// cluster session's metadata cache design.
type topicMeta struct {
	partitions int32
	leaders    map[int32]int32 // partition -> leader node id; absent if unavailable
	expiresAt  time.Time
}

func (tm *topicMeta) available() []int32 {
	avail := make([]int32, 0, len(tm.leaders))
	for p, leader := range tm.leaders {
		if leader >= 0 {
			avail = append(avail, p)
		}
	}
	return avail
}

// Client is the cluster session: it holds the control connection to the
// Stream Controller, lazily dials SPU connections as partitions route to
// them, and caches topic metadata.
type Client struct {
	cfg clientCfg

	mu        sync.Mutex
	sc        *conn            // Stream Controller connection
	spus      map[int32]*conn  // node id -> SPU connection
	brokers   map[int32]kmsg.MetadataResponseBroker
	metadata  map[string]*topicMeta
	closed    bool
	connected bool
}

// NewClient builds a Client from opts without connecting; call Connect
// before issuing any request.
func NewClient(opts ...ClientOpt) (*Client, error) {
	cfg := defaultClientCfg()
	for _, o := range opts {
		o.applyClient(&cfg)
	}
	if cfg.profile != "" && cfg.profileLoader != nil && cfg.scEndpoint == "" && cfg.spuEndpoint == "" {
		sc, spu, err := cfg.profileLoader.LoadProfile(cfg.profile)
		if err != nil {
			return nil, ferr.Errorf(ferr.CodeConnectFailed, "loading profile %q: %v", cfg.profile, err)
		}
		cfg.scEndpoint = sc
		cfg.spuEndpoint = spu
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:      cfg,
		spus:     make(map[int32]*conn),
		brokers:  make(map[int32]kmsg.MetadataResponseBroker),
		metadata: make(map[string]*topicMeta),
	}, nil
}

// Connect dials the seed endpoint and performs the platform-version
// handshake, failing with IncompatiblePlatformVersion if the cluster's
// reported version is below cfg.minPlatformVersion.
func (c *Client) Connect(ctx context.Context) error {
	addr := c.cfg.spuEndpoint
	if addr == "" {
		addr = c.cfg.scEndpoint
	}
	if addr == "" {
		return ferr.New(ferr.CodeConnectFailed, "no seed or stream-controller endpoint configured")
	}

	sc, err := dialConn(ctx, addr, c.cfg.tlsCfg, c.cfg.sasl, c.cfg.logger)
	if err != nil {
		return err
	}

	req := &kmsg.ApiVersionsRequest{ClientSoftwareName: clientSoftwareName, ClientSoftwareVersion: clientSoftwareVersion}
	resp, err := c.request(ctx, sc, req)
	if err != nil {
		sc.close()
		return err
	}
	apiResp := resp.(*kmsg.ApiVersionsResponse)
	if apiResp.ErrorCode != "" {
		sc.close()
		return ferr.New(ferr.ErrorForBrokerCode(apiResp.ErrorCode), "ApiVersions: "+apiResp.ErrorCode)
	}

	minVer, err := ParseVersion(c.cfg.minPlatformVersion)
	if err != nil {
		sc.close()
		return err
	}
	clusterVer, err := ParseVersion(apiResp.PlatformVersion)
	if err != nil {
		sc.close()
		return ferr.Errorf(ferr.CodeMalformed, "cluster reported unparsable platform version %q", apiResp.PlatformVersion)
	}
	if !clusterVer.AtLeast(minVer) {
		sc.close()
		return ferr.NewIncompatiblePlatformVersion(minVer.String(), clusterVer.String())
	}

	c.mu.Lock()
	c.sc = sc
	c.connected = true
	c.mu.Unlock()

	c.cfg.logger.Log(LogLevelInfo, "connected to cluster", "addr", addr, "platform_version", clusterVer.String())
	return nil
}

// request issues req against cn with the client's configured request
// timeout applied if ctx carries no earlier deadline.
func (c *Client) request(ctx context.Context, cn *conn, req kmsg.Request) (kmsg.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.requestTimeout)
		defer cancel()
	}
	return cn.do(ctx, req)
}

// Close tears down every connection the session opened. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sc := c.sc
	spus := c.spus
	c.spus = nil
	c.mu.Unlock()

	if sc != nil {
		sc.close()
	}
	for _, s := range spus {
		s.close()
	}
	return nil
}

// HealthReport is the result of a CheckHealth probe: whether the cluster
// session is usable, which connections answered, how long the last
// successful round trip took, and any error the probe itself observed.
type HealthReport struct {
	IsHealthy bool
	// SpuConnected is nil when no SPU connection has been opened yet (no
	// produce/fetch has routed to one), so there is nothing to probe.
	SpuConnected *bool
	ScConnected  bool
	// LastSuccessfulRequestDuration is nil if the probe's round trip
	// failed outright.
	LastSuccessfulRequestDuration *time.Duration
	Error                         error
	Timestamp                     time.Time
}

// CheckHealth reports cluster-session health by issuing a cheap ApiVersions
// round trip against the Stream Controller connection and, if one is open,
// against one SPU connection too. It never blocks longer than ctx allows.
func (c *Client) CheckHealth(ctx context.Context) (*HealthReport, error) {
	c.mu.Lock()
	sc := c.sc
	var spu *conn
	for _, s := range c.spus {
		spu = s
		break
	}
	c.mu.Unlock()
	if sc == nil {
		return nil, ferr.ErrClosed
	}

	report := &HealthReport{Timestamp: time.Now()}

	start := time.Now()
	_, err := c.request(ctx, sc, &kmsg.ApiVersionsRequest{ClientSoftwareName: clientSoftwareName, ClientSoftwareVersion: clientSoftwareVersion})
	if err != nil {
		report.ScConnected = false
		report.Error = err
	} else {
		report.ScConnected = true
		d := time.Since(start)
		report.LastSuccessfulRequestDuration = &d
	}

	if spu != nil {
		_, spuErr := c.request(ctx, spu, &kmsg.ApiVersionsRequest{ClientSoftwareName: clientSoftwareName, ClientSoftwareVersion: clientSoftwareVersion})
		connected := spuErr == nil
		report.SpuConnected = &connected
		if spuErr != nil && report.Error == nil {
			report.Error = spuErr
		}
	}

	report.IsHealthy = report.ScConnected && (report.SpuConnected == nil || *report.SpuConnected)
	return report, nil
}

// CreateTopic asks the Stream Controller to create a topic per spec's
// TopicSpec fields, using the data model's documented defaults when zero.
func (c *Client) CreateTopic(ctx context.Context, topic string, partitions uint32, replicationFactor uint16, retention *time.Duration, segmentSize *uint64) error {
	c.mu.Lock()
	sc := c.sc
	c.mu.Unlock()
	if sc == nil {
		return ferr.ErrClosed
	}
	req := kmsg.NewCreateTopicsRequest(topic, partitions, replicationFactor, retention, segmentSize, c.cfg.requestTimeout)
	resp, err := c.request(ctx, sc, req)
	if err != nil {
		return err
	}
	createResp := resp.(*kmsg.CreateTopicsResponse)
	for _, t := range createResp.Topics {
		if t.Topic == topic && t.ErrorCode != "" {
			return ferr.New(ferr.ErrorForBrokerCode(t.ErrorCode), t.ErrorMessage)
		}
	}
	return nil
}

// DeleteTopic asks the Stream Controller to delete topic.
func (c *Client) DeleteTopic(ctx context.Context, topic string) error {
	c.mu.Lock()
	sc := c.sc
	c.mu.Unlock()
	if sc == nil {
		return ferr.ErrClosed
	}
	req := &kmsg.DeleteTopicsRequest{Topics: []string{topic}, TimeoutMillis: int32(c.cfg.requestTimeout.Milliseconds())}
	resp, err := c.request(ctx, sc, req)
	if err != nil {
		return err
	}
	delResp := resp.(*kmsg.DeleteTopicsResponse)
	for _, t := range delResp.Topics {
		if t.Topic == topic && t.ErrorCode != "" {
			return ferr.New(ferr.ErrorForBrokerCode(t.ErrorCode), "delete topic: "+t.ErrorCode)
		}
	}
	c.mu.Lock()
	delete(c.metadata, topic)
	c.mu.Unlock()
	return nil
}

// metadataFor returns topic's cached metadata, refreshing it if absent,
// stale, or if forceRefresh is set (the caller saw
// UnknownTopicOrPartition/LeaderNotAvailable and wants a fresh leader map).
func (c *Client) metadataFor(ctx context.Context, topic string, forceRefresh bool) (*topicMeta, error) {
	c.mu.Lock()
	tm, ok := c.metadata[topic]
	sc := c.sc
	c.mu.Unlock()
	if sc == nil {
		return nil, ferr.ErrClosed
	}
	if ok && !forceRefresh && time.Now().Before(tm.expiresAt) {
		return tm, nil
	}

	resp, err := c.request(ctx, sc, &kmsg.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, err
	}
	metaResp := resp.(*kmsg.MetadataResponse)

	c.mu.Lock()
	for _, b := range metaResp.Brokers {
		c.brokers[b.NodeID] = b
	}
	c.mu.Unlock()

	var found *kmsg.MetadataResponseTopic
	for i := range metaResp.Topics {
		if metaResp.Topics[i].Topic == topic {
			found = &metaResp.Topics[i]
			break
		}
	}
	if found == nil {
		return nil, ferr.New(ferr.CodeUnknownTopicOrPartition, topic)
	}
	if found.ErrorCode != "" {
		return nil, ferr.New(ferr.ErrorForBrokerCode(found.ErrorCode), topic)
	}

	newTM := &topicMeta{
		partitions: int32(len(found.Partitions)),
		leaders:    make(map[int32]int32, len(found.Partitions)),
		expiresAt:  time.Now().Add(c.cfg.metadataTTL),
	}
	for _, p := range found.Partitions {
		if p.ErrorCode != "" {
			newTM.leaders[p.Partition] = -1
			continue
		}
		newTM.leaders[p.Partition] = p.LeaderID
	}

	c.mu.Lock()
	c.metadata[topic] = newTM
	c.mu.Unlock()
	return newTM, nil
}

// PartitionerConfig implements Sender for the producer: it returns the
// topic's partition count and currently-available (leader-having)
// partitions.
func (c *Client) PartitionerConfig(ctx context.Context, topic string) (PartitionerConfig, error) {
	tm, err := c.metadataFor(ctx, topic, false)
	if err != nil {
		return PartitionerConfig{}, err
	}
	return PartitionerConfig{PartitionCount: tm.partitions, AvailablePartitions: tm.available()}, nil
}

// spuFor returns (dialing if necessary) the connection to the leader SPU
// of (topic, partition), refreshing metadata first if forceRefresh is set.
func (c *Client) spuFor(ctx context.Context, topic string, partition int32, forceRefresh bool) (*conn, error) {
	tm, err := c.metadataFor(ctx, topic, forceRefresh)
	if err != nil {
		return nil, err
	}
	leader, ok := tm.leaders[partition]
	if !ok || leader < 0 {
		if !forceRefresh {
			return c.spuFor(ctx, topic, partition, true)
		}
		return nil, ferr.NewPartitionUnavailable(partition, tm.available())
	}

	c.mu.Lock()
	if cn, ok := c.spus[leader]; ok {
		c.mu.Unlock()
		return cn, nil
	}
	broker, ok := c.brokers[leader]
	c.mu.Unlock()
	if !ok {
		return nil, ferr.Errorf(ferr.CodeLeaderNotAvailable, "no broker entry for leader node %d", leader)
	}

	cn, err := dialConn(ctx, brokerAddr(broker.Host, broker.Port), c.cfg.tlsCfg, c.cfg.sasl, c.cfg.logger)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.spus[leader] = cn
	c.mu.Unlock()
	return cn, nil
}

// ProducePartition implements Sender: it sends one pre-serialized record
// batch to the leader SPU of (topic, partition) and returns the assigned
// base offset.
func (c *Client) ProducePartition(ctx context.Context, topic string, partition int32, batch []byte, acks kmsg.Acks, timeout time.Duration) (int64, error) {
	cn, err := c.spuFor(ctx, topic, partition, false)
	if err != nil {
		return 0, err
	}

	req := &kmsg.ProduceRequest{
		Acks:          acks,
		TimeoutMillis: int32(timeout.Milliseconds()),
		Topics: []kmsg.ProduceRequestTopic{{
			Topic:      topic,
			Partitions: []kmsg.ProduceRequestPartition{{Partition: partition, Batch: batch}},
		}},
	}
	resp, err := c.request(ctx, cn, req)
	if err != nil {
		return 0, err
	}
	produceResp := resp.(*kmsg.ProduceResponse)
	for _, t := range produceResp.Topics {
		if t.Topic != topic {
			continue
		}
		for _, p := range t.Partitions {
			if p.Partition != partition {
				continue
			}
			if p.ErrorCode != "" {
				code := ferr.ErrorForBrokerCode(p.ErrorCode)
				if code == ferr.CodeLeaderNotAvailable || code == ferr.CodeUnknownTopicOrPartition {
					c.mu.Lock()
					delete(c.metadata, topic)
					c.mu.Unlock()
				}
				return 0, ferr.New(code, p.ErrorCode)
			}
			return p.BaseOffset, nil
		}
	}
	return 0, ferr.Errorf(ferr.CodeMalformed, "produce response missing partition %d", partition)
}
