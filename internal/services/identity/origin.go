package identity

import (
	"context"
	"net"
	"os"
)

// OriginSource reports where a participant connects from.
type OriginSource interface {
	Origin(ctx context.Context) (string, error)
}

// StaticOrigin always reports the same origin.
type StaticOrigin string

func (o StaticOrigin) Origin(context.Context) (string, error) { return string(o), nil }

// HostOrigin reports "hostname|address", where address is the first
// non-loopback interface address. Without one it reports the hostname.
type HostOrigin struct{}

func (HostOrigin) Origin(context.Context) (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", err
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return host, nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		return host + "|" + ipnet.IP.String(), nil
	}
	return host, nil
}
