package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/config"
)

func TestBrokerHealth_Disabled(t *testing.T) {
	reporter, closeFn, err := brokerHealth(&config.RabbitMQConfig{Enabled: false}, zap.NewNop())

	require.NoError(t, err)
	assert.Nil(t, reporter, "readiness must skip the broker check")
	require.NotNil(t, closeFn)
	closeFn()
}

func TestBrokerHealth_UnreachableBroker(t *testing.T) {
	cfg := &config.RabbitMQConfig{
		Enabled:  true,
		Host:     "127.0.0.1",
		Port:     1,
		User:     "guest",
		Password: "guest",
		Exchange: "viral.videos",
	}

	reporter, _, err := brokerHealth(cfg, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, reporter)
}
