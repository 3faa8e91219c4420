// Package device holds the registry of built-in virtual USB devices that
// scenarios attach by kind.
package device

import (
	"sort"
	"strings"
	"sync"

	"github.com/Alia5/vxhci/usb"
)

// CreateOptions overrides descriptor defaults of a built-in device.
type CreateOptions struct {
	IdVendor  *uint16
	IdProduct *uint16
}

// Factory creates a device. o may be nil.
type Factory func(o *CreateOptions) usb.Device

// InputFeeder is implemented by devices that take input states in their
// binary wire form. Each state is reported on a later interrupt IN poll.
type InputFeeder interface {
	FeedInput(state []byte) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a device kind available. It is called from device package
// init functions; the name is case-insensitive.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// Kinds lists the registered device kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for name := range registry {
		kinds = append(kinds, name)
	}
	sort.Strings(kinds)
	return kinds
}
