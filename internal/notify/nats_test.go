package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
)

func TestNewPublisherDisabled(t *testing.T) {
	_, err := NewPublisher(&config.NotifyConfig{Enabled: false})
	require.Error(t, err)

	_, err = NewPublisher(nil)
	require.Error(t, err)
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(Event{DeployID: "d1"}))
	p.Close()
}
