package llm

import (
	"net/http"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Provider adapts one vendor's chat API to Request and Response.
type Provider interface {
	Name() string

	// Endpoint returns the completion URL for baseURL, or the vendor
	// default when baseURL is empty.
	Endpoint(baseURL string) string

	// Authorize adds credentials and vendor headers.
	Authorize(req *http.Request)

	Encode(model string, req Request) ([]byte, error)
	Decode(body []byte, model string) (*Response, error)
}

// providers is the process-wide provider table. Packages register into it
// from init.
var providers = struct {
	sync.RWMutex
	byName map[string]Provider
}{byName: map[string]Provider{}}

// RegisterProvider adds p, replacing any provider with the same name.
func RegisterProvider(p Provider) {
	providers.Lock()
	defer providers.Unlock()
	providers.byName[p.Name()] = p
}

// GetProvider returns the named provider, or nil.
func GetProvider(name string) Provider {
	providers.RLock()
	defer providers.RUnlock()
	return providers.byName[name]
}

// ListProviders returns the registered names, sorted.
func ListProviders() []string {
	providers.RLock()
	names := lo.Keys(providers.byName)
	providers.RUnlock()
	slices.Sort(names)
	return names
}
