package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// topicPublisher sends one message and waits for the server ack.
type topicPublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

type topicSource interface {
	Topic(name string) topicPublisher
}

type publisherLookup interface {
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubTopics caches one publisher per topic for the life of the process.
type pubsubTopics struct {
	client publisherLookup

	mu    sync.Mutex
	cache map[string]topicPublisher
}

func newPubSubTopics(client publisherLookup) *pubsubTopics {
	return &pubsubTopics{client: client, cache: make(map[string]topicPublisher)}
}

func (t *pubsubTopics) Topic(name string) topicPublisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.cache[name]; ok {
		return pub
	}
	p := t.client.Publisher(name)
	if p == nil {
		return nil
	}
	pub := gcpTopic{p}
	t.cache[name] = pub
	return pub
}

type gcpTopic struct {
	p *gcppubsub.Publisher
}

func (g gcpTopic) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	res := g.p.Publish(ctx, &gcppubsub.Message{Data: data, Attributes: attrs})
	if res == nil {
		return errors.New("publish returned no result")
	}
	_, err := res.Get(ctx)
	return err
}
