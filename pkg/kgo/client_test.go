package kgo

import (
	"context"
	"testing"

	"github.com/fluvio-go/fluvio/pkg/ferr"
)

func TestTopicMetaAvailableExcludesNegativeLeaders(t *testing.T) {
	tm := &topicMeta{
		partitions: 3,
		leaders:    map[int32]int32{0: 1, 1: -1, 2: 2},
	}
	avail := tm.available()
	var got []int32
	got = append(got, avail...)
	if len(got) != 2 {
		t.Fatalf("available() = %v, want 2 entries", got)
	}
	seen := map[int32]bool{}
	for _, p := range got {
		seen[p] = true
	}
	if !seen[0] || !seen[2] || seen[1] {
		t.Errorf("available() = %v, want partitions {0,2} without 1", got)
	}
}

func TestClientConnectFailsWithoutEndpoint(t *testing.T) {
	c, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}
	err = c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect to fail with no endpoint configured")
	}
	fe, ok := err.(*ferr.FluvioError)
	if !ok || fe.Code != ferr.CodeConnectFailed {
		t.Fatalf("got error %v, want CodeConnectFailed", err)
	}
}

func TestClientCloseIsIdempotentWithoutConnecting(t *testing.T) {
	c, err := NewClient(WithSeedEndpoint("127.0.0.1:9003"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestClientOperationsFailBeforeConnect(t *testing.T) {
	c, err := NewClient(WithSeedEndpoint("127.0.0.1:9003"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := c.CheckHealth(ctx); err == nil {
		t.Error("CheckHealth should fail before Connect")
	}
	if err := c.CreateTopic(ctx, "t", 1, 1, nil, nil); err == nil {
		t.Error("CreateTopic should fail before Connect")
	}
	if err := c.DeleteTopic(ctx, "t"); err == nil {
		t.Error("DeleteTopic should fail before Connect")
	}
	if _, err := c.PartitionerConfig(ctx, "t"); err == nil {
		t.Error("PartitionerConfig should fail before Connect")
	}
}

func TestNewClientRejectsInvalidEndpoint(t *testing.T) {
	if _, err := NewClient(WithSeedEndpoint("not a valid host!!")); err == nil {
		t.Fatal("expected NewClient to reject a malformed endpoint")
	}
}

func TestNewClientRejectsInvalidMinPlatformVersion(t *testing.T) {
	if _, err := NewClient(WithMinPlatformVersion("not-a-version")); err == nil {
		t.Fatal("expected NewClient to reject a malformed minimum platform version")
	}
}

func TestNewClientResolvesEndpointsFromProfile(t *testing.T) {
	loader := fakeProfileLoader{sc: "sc.example.com:9003", spu: "spu.example.com:9004"}
	c, err := NewClient(WithProfile("default", loader))
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.scEndpoint != "sc.example.com:9003" || c.cfg.spuEndpoint != "spu.example.com:9004" {
		t.Errorf("profile endpoints not applied: sc=%q spu=%q", c.cfg.scEndpoint, c.cfg.spuEndpoint)
	}
}

func TestNewClientExplicitEndpointOverridesProfile(t *testing.T) {
	loader := fakeProfileLoader{sc: "sc.example.com:9003", spu: "spu.example.com:9004"}
	c, err := NewClient(WithProfile("default", loader), WithSeedEndpoint("override.example.com:9004"))
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.spuEndpoint != "override.example.com:9004" {
		t.Errorf("explicit endpoint did not override profile: %q", c.cfg.spuEndpoint)
	}
}

type fakeProfileLoader struct {
	sc, spu string
}

func (f fakeProfileLoader) LoadProfile(name string) (string, string, error) {
	return f.sc, f.spu, nil
}
