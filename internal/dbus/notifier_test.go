package dbus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageArgs(t *testing.T) {
	m := Message{
		AppIcon:       "audio-volume-high",
		Summary:       "Ping",
		Body:          "from host",
		Urgency:       UrgencyCritical,
		ExpireTimeout: 5000,
	}

	args := m.args()
	require.Len(t, args, 8)
	assert.Equal(t, DefaultAppName, args[0])
	assert.Equal(t, uint32(0), args[1])
	assert.Equal(t, "audio-volume-high", args[2])
	assert.Equal(t, "Ping", args[3])
	assert.Equal(t, "from host", args[4])
	assert.Equal(t, []string{}, args[5])
	assert.Equal(t, int32(5000), args[7])

	hints, ok := args[6].(map[string]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, UrgencyCritical, hints["urgency"].Value())
	assert.Equal(t, true, hints["suppress-sound"].Value())
	assert.NotContains(t, hints, "category")
}

func TestMessageArgs_AppNameAndCategory(t *testing.T) {
	m := Message{AppName: "relay", Category: "im.received"}

	args := m.args()
	assert.Equal(t, "relay", args[0])

	hints := args[6].(map[string]dbus.Variant)
	assert.Equal(t, "im.received", hints["category"].Value())
	assert.Equal(t, UrgencyLow, hints["urgency"].Value())
}

func TestNotifier_CloseWithoutConnection(t *testing.T) {
	n := NewNotifier("", nil)
	assert.NoError(t, n.Close())
}
