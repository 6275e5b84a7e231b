package extalife

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ChannelType selects which device classes Channels fetches.
type ChannelType string

const (
	ChannelTypeReceivers         ChannelType = "receivers"
	ChannelTypeSensors           ChannelType = "sensors"
	ChannelTypeTransmitters      ChannelType = "transmitters"
	ChannelTypeExtaFreeReceivers ChannelType = "exta_free_receivers"
)

// AllChannelTypes lists every channel class the controller exposes.
var AllChannelTypes = []ChannelType{
	ChannelTypeReceivers,
	ChannelTypeSensors,
	ChannelTypeTransmitters,
	ChannelTypeExtaFreeReceivers,
}

var channelTypeCommands = map[ChannelType]Command{
	ChannelTypeReceivers:         CmdFetchReceivers,
	ChannelTypeSensors:           CmdFetchSensors,
	ChannelTypeTransmitters:      CmdFetchTransmitters,
	ChannelTypeExtaFreeReceivers: CmdFetchExtaFree,
}

// Channel is one logical device channel: the native channel state merged
// with its device attributes.
type Channel struct {
	ID   string `json:"id"`
	Data Data   `json:"data"`
}

// Channels fetches the requested channel classes and flattens them into a
// per-channel list. Transmitters have no channel number on the wire and get
// "#" instead.
func (c *Client) Channels(ctx context.Context, include ...ChannelType) ([]Channel, error) {
	if len(include) == 0 {
		include = AllChannelTypes
	}

	var mu sync.Mutex
	var channels []Channel
	g, ctx := errgroup.WithContext(ctx)

	for _, typ := range include {
		cmd, ok := channelTypeCommands[typ]
		if !ok {
			return nil, fmt.Errorf("extalife: unknown channel type %q", typ)
		}
		dummyChannel := typ == ChannelTypeTransmitters
		g.Go(func() error {
			resp, err := c.Exec(ctx, cmd, nil)
			if err != nil {
				return err
			}
			flat := flattenChannels(resp.Data, dummyChannel)
			mu.Lock()
			channels = append(channels, flat...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

// flattenChannels turns device frames (devices[].state[]) into one entry per
// channel, each carrying the union of state and device attributes. With
// dummyChannel set every entry gets "#" as its channel number, even when the
// state carries one. Exta Free devices are moved into the Exta Life type
// namespace by adding 300 to their native type.
func flattenChannels(frames []Data, dummyChannel bool) []Channel {
	var channels []Channel
	for _, frame := range frames {
		devices, ok := frame["devices"].([]interface{})
		if !ok {
			continue
		}
		for _, d := range devices {
			device, ok := d.(map[string]interface{})
			if !ok {
				continue
			}
			states, _ := device["state"].([]interface{})

			dev := make(Data, len(device))
			for k, v := range device {
				if k != "state" {
					dev[k] = v
				}
			}
			if extaFree, _ := device["exta_free_device"].(bool); extaFree && len(states) > 0 {
				if first, ok := states[0].(map[string]interface{}); ok {
					if typ, ok := toInt(first["exta_free_type"]); ok {
						dev["type"] = typ + 300
					}
				}
			}

			for _, s := range states {
				state, ok := s.(map[string]interface{})
				if !ok {
					continue
				}
				channelNo := "#"
				if !dummyChannel {
					if no, ok := toInt(state["channel"]); ok {
						channelNo = fmt.Sprint(no)
					}
				}

				data := make(Data, len(state)+len(dev))
				for k, v := range state {
					data[k] = v
				}
				for k, v := range dev {
					data[k] = v
				}
				channels = append(channels, Channel{
					ID:   fmt.Sprintf("%v-%s", device["id"], channelNo),
					Data: data,
				})
			}
		}
	}
	return channels
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}
