package linkguard

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// PoolKey identifies a connection pool bucket: scheme, host[:port],
// and the basic-auth credentials in use for that connection, per §3
// ("Connection pool entry").
type PoolKey struct {
	Scheme   string
	Host     string
	User     string
	Password string
}

// String renders the key for logging.
func (k PoolKey) String() string {
	return fmt.Sprintf("%s://%s@%s", k.Scheme, k.User, k.Host)
}

// pooledConn is a connection pool entry: an idle connection plus the
// expiry derived from the server-advertised keep-alive timeout.
type pooledConn struct {
	key     PoolKey
	conn    net.Conn
	expires time.Time
}

// hostBucket is the idle-connection list for one host, guarded by its
// own mutex so no worker blocks on another host's traffic (§5,
// "internally each uses a single mutex per bucket ... sharded by
// host for the pool").
//
// A plain slice-backed LRU is used here rather than the agecache
// library (wired in internal/robots for the robots cache, see
// DESIGN.md): that call site only ever Gets-or-Sets a single value per
// key, while a connection bucket must pop an
// arbitrary idle entry for exclusive reuse and evict the oldest one on
// overflow, which needs more than a keyed get/set.
type hostBucket struct {
	mu       sync.Mutex
	idle     []*pooledConn
	capacity int
}

func (b *hostBucket) get(key PoolKey) (net.Conn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for i := len(b.idle) - 1; i >= 0; i-- {
		pc := b.idle[i]
		b.idle = append(b.idle[:i], b.idle[i+1:]...)
		if pc.key != key {
			pc.conn.Close()
			continue
		}
		if now.After(pc.expires) {
			pc.conn.Close()
			continue
		}
		return pc.conn, true
	}
	return nil, false
}

func (b *hostBucket) put(key PoolKey, conn net.Conn, timeoutSeconds int) bool {
	if timeoutSeconds <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.idle) >= b.capacity {
		oldest := b.idle[0]
		oldest.conn.Close()
		b.idle = b.idle[1:]
	}

	b.idle = append(b.idle, &pooledConn{
		key:     key,
		conn:    conn,
		expires: time.Now().Add(time.Duration(timeoutSeconds) * time.Second),
	})
	return true
}

// Pool implements the connection pool (§4.C).
//
// A connection is returned to the pool only when Persistent is true
// and the body has been fully consumed; otherwise the caller must
// close it directly.
type Pool struct {
	mu       sync.Mutex
	buckets  map[string]*hostBucket
	perHost  int
	sema     map[string]chan struct{}
	semaSize int
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// PerHostCapacity bounds idle connections kept per host. Defaults
	// to 5 when <= 0 (the spec's "small" default ceiling, §5).
	PerHostCapacity int

	// MaxConcurrentPerHost bounds in-flight requests to a single host
	// at any time (§5 "max concurrent connections per host").
	MaxConcurrentPerHost int
}

// NewPool returns a new connection pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.PerHostCapacity <= 0 {
		cfg.PerHostCapacity = 5
	}
	if cfg.MaxConcurrentPerHost <= 0 {
		cfg.MaxConcurrentPerHost = 5
	}
	return &Pool{
		buckets:  make(map[string]*hostBucket),
		perHost:  cfg.PerHostCapacity,
		sema:     make(map[string]chan struct{}),
		semaSize: cfg.MaxConcurrentPerHost,
	}
}

func (p *Pool) bucket(host string) *hostBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[host]
	if !ok {
		b = &hostBucket{capacity: p.perHost}
		p.buckets[host] = b
	}
	return b
}

// Get returns an idle connection for key if one is present and not
// expired; the connection is removed from the pool for exclusive use.
func (p *Pool) Get(key PoolKey) (net.Conn, bool) {
	return p.bucket(key.Host).get(key)
}

// Put stores conn under key iff timeoutSeconds > 0; when the bucket is
// already at capacity, its oldest idle connection is closed and dropped
// to make room. It returns whether the connection was stored. When not
// stored, the caller is responsible for closing conn.
func (p *Pool) Put(key PoolKey, conn net.Conn, timeoutSeconds int) bool {
	return p.bucket(key.Host).put(key, conn, timeoutSeconds)
}

// Acquire blocks until a concurrency slot for host is available,
// returning a release function. It enforces the "max concurrent
// connections per host" ceiling from §5 independently of connection
// reuse.
func (p *Pool) Acquire(host string) func() {
	p.mu.Lock()
	ch, ok := p.sema[host]
	if !ok {
		ch = make(chan struct{}, p.semaSize)
		p.sema[host] = ch
	}
	p.mu.Unlock()

	ch <- struct{}{}
	return func() { <-ch }
}
