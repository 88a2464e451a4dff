package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

// ArtifactPublisher publishes scheduler artifacts on the artifact exchange
// with routing keys artifact.<kind>. An AMQP channel must not be shared by
// concurrent publishers, so calls are serialised.
type ArtifactPublisher struct {
	mu sync.Mutex
	ch channel
}

func NewArtifactPublisher(ch channel) *ArtifactPublisher {
	return &ArtifactPublisher{ch: ch}
}

// RoutingKey returns the topic an artifact of kind is published under.
func RoutingKey(kind string) string {
	return "artifact." + kind
}

func (p *ArtifactPublisher) PublishArtifact(ctx context.Context, artifact common.Artifact) error {
	return p.publish(ctx, RoutingKey(artifact.Kind), artifact)
}

func (p *ArtifactPublisher) PublishMarket(ctx context.Context, market common.Market) error {
	return p.publish(ctx, RoutingKey(common.ArtifactMarket), market)
}

func (p *ArtifactPublisher) publish(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishTopic(ctx, p.ch, key, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}
