package storage

import (
	"github.com/golang/glog"

	"github.com/itiky/resource-sync/internal/assert"
)

// reconcileLocked merges an incoming collection into the cache following opts.Mode.
// Returns the clientIds of the incoming resources in the response order.
func (s *Store[S, Q]) reconcileLocked(incoming []Fields, opts FetchOptions) []ClientId {
	inSegment := opts.SegmentFilter
	if inSegment == nil {
		inSegment = func(*Model) bool { return true }
	}

	clientIds := make([]ClientId, 0, len(incoming))
	switch opts.Mode {
	case Replace:
		// Drop the segment, then insert
		for _, m := range s.segmentLocked(inSegment) {
			s.removeLocked(m)
		}
		for _, fields := range incoming {
			clientIds = append(clientIds, s.mergeLocked(fields).clientId)
		}

	case Append:
		for _, fields := range incoming {
			id := s.serializer.IdFromFields(fields)
			if m := s.lookupLocked(id); m != nil {
				assert.Invariant(false, "%s: append: id %s is already cached", s.name, id)
				s.patchLocked(m, fields)
				clientIds = append(clientIds, m.clientId)
				continue
			}

			m := &Model{
				clientId: NewClientId(),
				fields:   fields.Clone(),
			}
			s.addLocked(m)
			clientIds = append(clientIds, m.clientId)
		}

	case PreserveAppend:
		for _, fields := range incoming {
			clientIds = append(clientIds, s.mergeLocked(fields).clientId)
		}

	default:
		// PreserveReplace: patch or insert, then prune the segment entries absent from the response
		seen := make(map[ClientId]bool, len(incoming))
		for _, fields := range incoming {
			m := s.mergeLocked(fields)
			seen[m.clientId] = true
			clientIds = append(clientIds, m.clientId)
		}

		pruned := 0
		for _, m := range s.segmentLocked(inSegment) {
			// Models without a server id are optimistic creates in flight
			if seen[m.clientId] || m.Id() == "" {
				continue
			}
			s.removeLocked(m)
			pruned++
		}
		if pruned > 0 && glog.V(2) {
			glog.Infof("[%s] %s: %d stale models pruned", s.name, opts.Mode, pruned)
		}
	}

	return clientIds
}

// segmentLocked returns a copy of the cached Models matching the segment filter.
func (s *Store[S, Q]) segmentLocked(inSegment func(*Model) bool) []*Model {
	list := make([]*Model, 0, len(s.list))
	for _, m := range s.list {
		if inSegment(m) {
			list = append(list, m)
		}
	}

	return list
}
