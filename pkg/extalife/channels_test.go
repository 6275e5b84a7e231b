package extalife

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const receiversFrame = `{
	"devices": [{
		"id": 11,
		"is_powered": false,
		"serial": 725149,
		"type": 11,
		"state": [
			{"alias": "Room 1-1", "channel": 1, "power": 0},
			{"alias": "Room 1-2", "channel": 2, "power": 1}
		]
	}]
}`

func frameFromJSON(t *testing.T, s string) Data {
	t.Helper()
	var d Data
	require.NoError(t, json.Unmarshal([]byte(s), &d))
	return d
}

func TestFlattenChannels(t *testing.T) {
	channels := flattenChannels([]Data{frameFromJSON(t, receiversFrame)}, false)
	require.Len(t, channels, 2)

	assert.Equal(t, "11-1", channels[0].ID)
	assert.Equal(t, "11-2", channels[1].ID)

	// state and device attributes are merged per channel
	first := channels[0].Data
	assert.Equal(t, "Room 1-1", first["alias"])
	assert.Equal(t, float64(725149), first["serial"])
	assert.Equal(t, float64(11), first["type"])
	_, hasState := first["state"]
	assert.False(t, hasState)
}

func TestFlattenChannelsTransmitter(t *testing.T) {
	frame := frameFromJSON(t, `{"devices":[{"id": 7, "type": 30, "state": [{"alias": "Remote"}]}]}`)
	channels := flattenChannels([]Data{frame}, true)
	require.Len(t, channels, 1)
	assert.Equal(t, "7-#", channels[0].ID)

	// transmitters keep the "#" channel even when the state carries a number
	frame = frameFromJSON(t, `{"devices":[{"id": 8, "type": 30, "state": [{"alias": "Remote", "channel": 4}]}]}`)
	channels = flattenChannels([]Data{frame}, true)
	require.Len(t, channels, 1)
	assert.Equal(t, "8-#", channels[0].ID)
}

func TestFlattenChannelsExtaFree(t *testing.T) {
	frame := frameFromJSON(t, `{
		"devices": [{
			"id": 3,
			"exta_free_device": true,
			"type": 1,
			"state": [{"channel": 1, "exta_free_type": 10}]
		}]
	}`)
	channels := flattenChannels([]Data{frame}, false)
	require.Len(t, channels, 1)
	assert.Equal(t, 310, channels[0].Data["type"])
}

func TestFlattenChannelsIgnoresMalformedFrames(t *testing.T) {
	channels := flattenChannels([]Data{{"devices": "bogus"}, nil}, false)
	assert.Empty(t, channels)
}
