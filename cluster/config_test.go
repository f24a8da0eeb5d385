package cluster

import (
	"testing"
	"time"

	"github.com/kevwan/rcluster/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := Config{Name: "c1", ServList: []topo.Node{{IP: "10.0.0.1", Port: 6379}}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultConnectionTimeout, cfg.ConnectionTimeout)
	assert.Equal(t, defaultConnectionTimeout, cfg.ConnectionTimout)
	assert.Equal(t, defaultMaxConnectionAttempt, cfg.MaxConnectionAttempts)
	assert.Equal(t, defaultMaxRedirection, cfg.MaxRedirection)
	assert.Equal(t, defaultKeepaliveTimeout, cfg.KeepaliveTimeout)
	assert.Equal(t, defaultKeepaliveCons, cfg.KeepaliveCons)
	assert.NotNil(t, cfg.Logger)
}

func TestConfigValidateRequiresName(t *testing.T) {
	cfg := Config{ServList: []topo.Node{{IP: "10.0.0.1", Port: 6379}}}
	err := cfg.Validate()
	require.Error(t, err)
	rerr, ok := err.(*RoutingError)
	require.True(t, ok)
	assert.Equal(t, ConfigInvalid, rerr.Kind)
}

func TestConfigValidateRequiresServList(t *testing.T) {
	cfg := Config{Name: "c1"}
	err := cfg.Validate()
	require.Error(t, err)
	rerr, ok := err.(*RoutingError)
	require.True(t, ok)
	assert.Equal(t, ConfigInvalid, rerr.Kind)
}

func TestConfigValidateAcceptsMatchingAlias(t *testing.T) {
	cfg := Config{
		Name:              "c1",
		ServList:          []topo.Node{{IP: "10.0.0.1", Port: 6379}},
		ConnectionTimeout: 2 * time.Second,
		ConnectionTimout:  2 * time.Second,
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.ConnectionTimeout)
}

func TestConfigValidateRejectsConflictingAlias(t *testing.T) {
	cfg := Config{
		Name:              "c1",
		ServList:          []topo.Node{{IP: "10.0.0.1", Port: 6379}},
		ConnectionTimeout: 2 * time.Second,
		ConnectionTimout:  3 * time.Second,
	}
	err := cfg.Validate()
	require.Error(t, err)
	rerr, ok := err.(*RoutingError)
	require.True(t, ok)
	assert.Equal(t, ConfigInvalid, rerr.Kind)
}

func TestConfigValidateAliasOnlySet(t *testing.T) {
	cfg := Config{
		Name:             "c1",
		ServList:         []topo.Node{{IP: "10.0.0.1", Port: 6379}},
		ConnectionTimout: 750 * time.Millisecond,
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 750*time.Millisecond, cfg.ConnectionTimeout)
}
