// ABOUTME: mDNS service discovery for transcoding servers
// ABOUTME: Advertises the stream service and browses for other servers
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service type of a transcoding server
const ServiceType = "_sendspin-transcode._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// TXT records, e.g. "path=/stream", "codec=opus"
	Info []string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	browsed atomic.Bool
}

// ErrBrowsed is returned by a second Browse on the same Manager
var ErrBrowsed = errors.New("discovery: manager already browsed")

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Info []string
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise advertises this server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.config.Info,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse queries for servers once and reports them on Servers.
// The channel is closed when the query times out, so a Manager browses only
// once; later calls return ErrBrowsed.
func (m *Manager) Browse(timeout time.Duration) error {
	if !m.browsed.CompareAndSwap(false, true) {
		return ErrBrowsed
	}
	entries := make(chan *mdns.ServiceEntry, 10)

	go func() {
		defer close(m.servers)
		for entry := range entries {
			server := serverInfo(entry)
			log.Printf("Discovered server: %s at %s:%d", server.Name, server.Host, server.Port)

			select {
			case m.servers <- server:
			case <-m.ctx.Done():
				return
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	if err != nil {
		return fmt.Errorf("mdns query failed: %w", err)
	}
	return nil
}

func serverInfo(entry *mdns.ServiceEntry) *ServerInfo {
	host := entry.Host
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	}
	return &ServerInfo{
		Name: entry.Name,
		Host: host,
		Port: entry.Port,
		Info: entry.InfoFields,
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
