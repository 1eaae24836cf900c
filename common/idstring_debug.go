//go:build !oxy_release

package common

import (
	"fmt"
	"sync"
)

const idStringDebug = true

var (
	idStringMu    sync.RWMutex
	idStringNames = map[IdString]string{}
)

func registerIdString(id IdString, name string) {
	idStringMu.Lock()
	defer idStringMu.Unlock()
	if existing, ok := idStringNames[id]; ok {
		if existing != name {
			panic(fmt.Sprintf("common: IdString collision between %q and %q (0x%08x)", existing, name, uint32(id)))
		}
		return
	}
	idStringNames[id] = name
}

func lookupIdString(id IdString) (string, bool) {
	idStringMu.RLock()
	defer idStringMu.RUnlock()
	name, ok := idStringNames[id]
	return name, ok
}
