package lease

import (
	"sync"

	"github.com/google/uuid"
)

// subnetLocks is a lock table keyed by subnet ID, one mutex per subnet
// rather than a fixed-size hashed shard table: the cardinality here is the
// number of configured subnets, not the MAC address space, so there's no
// need to tolerate hash collisions the way shardedMutex does for MACs.
//
// Discover/Request/Release/Decline take both this lock and the per-MAC
// shardedMutex, always in subnet-then-MAC order, so that two different MACs
// racing to allocate the same free IP in the same subnet can't both pass
// the free-address scan before either commits (spec §5.2: at most one
// active lease per (subnet_id, ip)).
type subnetLocks struct {
	mu sync.Map // uuid.UUID -> *sync.Mutex
}

func (s *subnetLocks) lock(id uuid.UUID) func() {
	v, _ := s.mu.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
