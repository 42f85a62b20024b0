package game

import (
	"fmt"
	"sort"
	"sync"
)

// Collaborators bundles everything a transport implementation provides.
type Collaborators struct {
	Session   Session
	Farm      FarmEngine
	Friend    FriendEngine
	Tasks     TaskSystem
	Warehouse Warehouse
	Mall      Mall
}

// Driver creates the collaborator set for one transport implementation.
// The logf sink receives the implementation's categorized game log lines.
type Driver interface {
	Open(logf func(category, message string)) (Collaborators, error)
}

var (
	driversMu sync.Mutex
	drivers   = make(map[string]Driver)
)

// Register makes a transport driver available under the given name.
// Typically called from the driver package's init; registering twice under
// one name panics, same as a nil driver.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("game: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("game: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Open instantiates the named driver's collaborators.
func Open(name string, logf func(category, message string)) (Collaborators, error) {
	driversMu.Lock()
	d, ok := drivers[name]
	driversMu.Unlock()
	if !ok {
		return Collaborators{}, fmt.Errorf("game: unknown driver %q (linked: %v)", name, DriverNames())
	}
	return d.Open(logf)
}

// DriverNames lists the registered drivers, sorted.
func DriverNames() []string {
	driversMu.Lock()
	defer driversMu.Unlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
