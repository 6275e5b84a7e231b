package extalife

import (
	"context"
	"net"
	"time"
)

const (
	multicastGroup = "225.0.0.1"
	multicastPort  = 20401

	discoverTimeout = 3 * time.Second
)

// Discover listens for the UDP multicast beacon the EFC-01 emits on the
// local network and returns the controller IP address.
func Discover(ctx context.Context) (string, error) {
	group := &net.UDPAddr{IP: net.ParseIP(multicastGroup), Port: multicastPort}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return "", &ConnError{Op: "join multicast group", Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(discoverTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", &ConnError{Op: "set read deadline", Err: err}
	}

	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return "", &ConnError{Op: "discover controller", Err: err}
		}

		raw := buf[:n]
		if len(raw) > 0 && raw[len(raw)-1] == etx {
			raw = raw[:len(raw)-1]
		}
		frame, err := ParseFrame(raw)
		if err != nil {
			continue
		}
		// only the controller's own beacon counts
		if frame.Status == StatusBroadcast && frame.Command == CmdNoop {
			return addr.IP.String(), nil
		}
	}
}
