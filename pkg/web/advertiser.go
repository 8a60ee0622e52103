package web

import (
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/tempest-bridge/tempest-go/pkg/version"
)

// mDNS service parameters.
const (
	ServiceType = "_tempest-bridge._tcp"
	Domain      = "local."

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// InstanceName is the advertised service instance.
	InstanceName string

	// Interface restricts advertising to one interface. Empty means all.
	Interface string
}

// Advertiser announces the HTTP API over mDNS.
type Advertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	if config.InstanceName == "" {
		config.InstanceName = "Tempest Bridge"
	}
	if len(config.InstanceName) > MaxInstanceNameLen {
		config.InstanceName = config.InstanceName[:MaxInstanceNameLen]
	}
	return &Advertiser{config: config}
}

// TXTRecords returns the TXT strings published with the service.
func TXTRecords() []string {
	return []string{
		"path=" + version.PathPrefix(version.Current().Major),
		"api=" + version.API,
		"version=" + version.Version,
	}
}

func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Start advertises port, replacing any previous advertisement.
func (a *Advertiser) Start(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		a.config.InstanceName,
		ServiceType,
		Domain,
		port,
		TXTRecords(),
		a.interfaces(),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// Stop withdraws the advertisement. It is safe to call without Start.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Advertising reports whether the service is currently registered.
func (a *Advertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}
