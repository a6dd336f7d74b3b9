// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import (
	"github.com/bureau-foundation/shmlink/lib/checksum"
	"github.com/bureau-foundation/shmlink/lib/schema"
)

// pendingLimit bounds the resources a pump remembers after sending
// their references.
const pendingLimit = 64

// pendingResources holds resources whose checksum references were sent
// but whose blobs the peer may still request. Oldest entries are
// evicted first. A request for an evicted resource is answered from the
// cache if the cache has it.
type pendingResources struct {
	entries map[checksum.Checksum]schema.Resource
	order   []checksum.Checksum
}

func newPendingResources() *pendingResources {
	return &pendingResources{entries: make(map[checksum.Checksum]schema.Resource)}
}

func (p *pendingResources) add(sum checksum.Checksum, resource schema.Resource) {
	if _, exists := p.entries[sum]; exists {
		p.entries[sum] = resource
		return
	}
	if len(p.order) >= pendingLimit {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.entries, oldest)
	}
	p.entries[sum] = resource
	p.order = append(p.order, sum)
}

func (p *pendingResources) get(sum checksum.Checksum) (schema.Resource, bool) {
	resource, ok := p.entries[sum]
	return resource, ok
}

func (p *pendingResources) len() int { return len(p.entries) }
