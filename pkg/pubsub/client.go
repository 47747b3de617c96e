// Package pubsub wraps the Pub/Sub v2 client used for domain event fan-out.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

// Need is a topic or subscription a process depends on. NewClient and Ping
// fail when any need is missing.
type Need struct {
	kind resourceKind
	name string
}

// TopicNeed declares a dependency on a topic.
func TopicNeed(name string) Need { return Need{kind: kindTopic, name: strings.TrimSpace(name)} }

// SubscriptionNeeds declares the worker's configured subscriptions, skipping blanks.
func SubscriptionNeeds(cfg config.PubSubConfig) []Need {
	var needs []Need
	for _, name := range []string{cfg.NotificationSubscription, cfg.AnalyticsSubscription} {
		if n := strings.TrimSpace(name); n != "" {
			needs = append(needs, Need{kind: kindSubscription, name: n})
		}
	}
	return needs
}

type Client struct {
	client         *pubsub.Client
	projectID      string
	needs          []Need
	maxOutstanding int
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient dials Pub/Sub and verifies every need exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, needs ...Need) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	if len(needs) == 0 {
		return nil, errors.New("pubsub: at least one topic or subscription must be declared")
	}

	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: project, needs: needs, maxOutstanding: cfg.MaxOutstandingMessages}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "pubsub_needs", len(needs)), "pubsub client initialized")
	}
	return c, nil
}

// Ping re-checks that every declared resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, need := range c.needs {
		if err := c.check(ctx, need); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) check(ctx context.Context, need Need) error {
	full := qualify(c.projectID, need.kind, need.name)
	if full == "" {
		return fmt.Errorf("%s name is blank", need.kind)
	}

	var err error
	switch need.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(string(need.kind), "s"), need.name)
	default:
		return fmt.Errorf("checking %s %q: %w", need.kind, need.name, err)
	}
}

// Subscriber returns a receive handle for name (short ID or full resource name).
func (c *Client) Subscriber(name string) (*pubsub.Subscriber, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("pubsub client not initialized")
	}
	full := qualify(c.projectID, kindSubscription, name)
	if full == "" {
		return nil, fmt.Errorf("subscription %q not configured", name)
	}
	sub := c.client.Subscriber(full)
	if c.maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.maxOutstanding
	}
	return sub, nil
}

// Publisher returns a publish handle for a topic, or nil if name is blank.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if full := qualify(c.projectID, kindTopic, name); full != "" {
		return c.client.Publisher(full)
	}
	return nil
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// qualify expands a short ID to projects/<p>/<kind>/<id>; full names pass through.
func qualify(project string, kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + string(kind) + "/" + n
}
