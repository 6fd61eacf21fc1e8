//go:build integration
// +build integration

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/ad-tracker/viral-video-detector/internal/config"
	"github.com/ad-tracker/viral-video-detector/internal/models"
)

func setupTestRabbitMQ(t *testing.T) *config.RabbitMQConfig {
	t.Helper()
	ctx := context.Background()

	rabbitmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := rabbitmqContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := rabbitmqContainer.Host(ctx)
	require.NoError(t, err)
	port, err := rabbitmqContainer.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return &config.RabbitMQConfig{
		Enabled:    true,
		Host:       host,
		Port:       port.Int(),
		User:       "guest",
		Password:   "guest",
		Exchange:   "viral.videos.test",
		Queue:      "viral.videos.detected.test",
		RoutingKey: "video.viral",
	}
}

func TestRabbitPublisher_PublishViral(t *testing.T) {
	cfg := setupTestRabbitMQ(t)

	p, err := NewRabbitPublisher(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	assert.True(t, p.IsHealthy())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	video := &models.Video{VideoID: "7301", Views: 1500000, IsViral: true, RunID: "run-1", Country: "us"}
	require.NoError(t, p.PublishViral(ctx, video))

	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port))
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	var msg amqp.Delivery
	require.Eventually(t, func() bool {
		var ok bool
		msg, ok, err = ch.Get(cfg.Queue, true)
		return err == nil && ok
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, EventType, msg.Type)

	var event ViralEvent
	require.NoError(t, json.Unmarshal(msg.Body, &event))
	assert.Equal(t, msg.MessageId, event.EventID)
	assert.Equal(t, "7301", event.Video.VideoID)
	assert.Equal(t, int64(1500000), event.Video.Views)
}

func TestRabbitPublisher_Close(t *testing.T) {
	cfg := setupTestRabbitMQ(t)

	p, err := NewRabbitPublisher(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.False(t, p.IsHealthy())
	assert.Error(t, p.PublishViral(context.Background(), &models.Video{VideoID: "x"}))
}

func TestNewRabbitPublisher_ConnectionRefused(t *testing.T) {
	_, err := NewRabbitPublisher(&config.RabbitMQConfig{
		Host: "127.0.0.1", Port: 1, User: "guest", Password: "guest",
		Exchange: "x", Queue: "q", RoutingKey: "k",
	}, nil)
	assert.Error(t, err)
}
