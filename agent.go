package nsapi

import (
	"fmt"
	"runtime"
	"sync"
)

// Version is the library version reported in the User-Agent header.
const Version = "1.0.0"

// Agent holds a User-Agent identification string. The API terms require
// every request to identify the script and a way to contact its operator,
// so an Agent is set once and may not be changed afterwards.
type Agent struct {
	mu    sync.RWMutex
	value string
}

// Set records the User-Agent. Script and library information is appended
// to the provided value. Set returns an error if an agent has already
// been set.
func (a *Agent) Set(agent string) error {
	if agent == "" {
		return fmt.Errorf("nsapi: empty user agent")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.value != "" {
		return fmt.Errorf("nsapi: user agent cannot be re-set")
	}
	a.value = fmt.Sprintf("%s %s nsapi/%s", agent, runtime.Version(), Version)
	return nil
}

// Get returns the full User-Agent string, or "" if none has been set.
func (a *Agent) Get() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// SetAgent sets the process-wide User-Agent used by limiters constructed
// with [New]. It must be called before any governed request is sent.
func SetAgent(agent string) error {
	return sharedAgent().Set(agent)
}
