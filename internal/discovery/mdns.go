package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/betamos/zeroconf"
)

const (
	ServiceType = "_sealbox._udp"
	Domain      = "local."
)

// Relay is a relay endpoint discovered on the local network
type Relay struct {
	Name string
	Addr string
	Port int
}

// Announcer publishes this relay instance over mDNS
type Announcer struct {
	client *zeroconf.Client
}

// Announce publishes a relay under the given instance name and port
func Announce(name string, port int) (*Announcer, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("announce: invalid port %d", port)
	}
	svcType := zeroconf.NewType(ServiceType)
	self := zeroconf.NewService(svcType, name, uint16(port))
	client, err := zeroconf.New().Publish(self).Open()
	if err != nil {
		return nil, fmt.Errorf("zeroconf: %w", err)
	}
	return &Announcer{client: client}, nil
}

// Close stops announcing
func (a *Announcer) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Browser watches the local network for relay instances
type Browser struct {
	client *zeroconf.Client
}

// Browse reports every relay seen on the local network to onRelay
func Browse(onRelay func(Relay)) (*Browser, error) {
	svcType := zeroconf.NewType(ServiceType)
	client, err := zeroconf.New().
		Browse(func(e zeroconf.Event) {
			handleEvent(e, onRelay)
		}, svcType).
		Open()
	if err != nil {
		return nil, fmt.Errorf("zeroconf: %w", err)
	}
	return &Browser{client: client}, nil
}

func handleEvent(e zeroconf.Event, onRelay func(Relay)) {
	if onRelay == nil {
		return
	}
	for _, a := range e.Addrs {
		if !a.IsValid() {
			continue
		}
		onRelay(Relay{
			Name: e.Name,
			Addr: net.JoinHostPort(a.String(), strconv.Itoa(int(e.Port))),
			Port: int(e.Port),
		})
		return
	}
}

// Close stops browsing
func (b *Browser) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// ParseAddr splits "host:port" into host and numeric port
func ParseAddr(s string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
