package relay

import "sync"

// Conn 一條活著的連線.
type Conn interface {
	ID() string
	// Send 非阻塞投遞，佇列已滿或連線已關閉時回傳 false.
	Send(Outbound) bool
}

// ChannelRegistry handle 與連線之間的對應.
type ChannelRegistry interface {
	Join(handle string, conn Conn)
	Leave(conn Conn)
	MembersOf(handle string) []Conn
}

// RegistryStats 頻道統計.
type RegistryStats struct {
	Connections int `json:"connections"`
	Handles     int `json:"handles"`
}

// Registry 以 handle 為頻道的連線註冊表.
//
// 一條連線同一時間只屬於一個 handle；同一個 handle 可以有多條連線.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]Conn // handle -> connID -> conn
	handles map[string]string          // connID -> handle
}

var _ ChannelRegistry = (*Registry)(nil)

// NewRegistry 創建註冊表.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]map[string]Conn),
		handles: make(map[string]string),
	}
}

// Join 把連線加入 handle 的頻道，取代先前的 handle.
func (r *Registry) Join(handle string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if prev, ok := r.handles[id]; ok {
		if prev == handle {
			r.members[handle][id] = conn
			return
		}
		r.removeLocked(prev, id)
	}

	set, ok := r.members[handle]
	if !ok {
		set = make(map[string]Conn)
		r.members[handle] = set
	}
	set[id] = conn
	r.handles[id] = handle
}

// Leave 移除連線的所有關聯.
func (r *Registry) Leave(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if handle, ok := r.handles[id]; ok {
		r.removeLocked(handle, id)
		delete(r.handles, id)
	}
}

// MembersOf 回傳 handle 目前連線的快照.
func (r *Registry) MembersOf(handle string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[handle]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// HandleOf 回傳連線目前加入的 handle.
func (r *Registry) HandleOf(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[conn.ID()]
	return h, ok
}

// Stats 回傳連線與 handle 數量.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Connections: len(r.handles),
		Handles:     len(r.members),
	}
}

func (r *Registry) removeLocked(handle, id string) {
	set := r.members[handle]
	delete(set, id)
	if len(set) == 0 {
		delete(r.members, handle)
	}
}
