package cluster

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kevwan/rcluster/pool"
	"github.com/kevwan/rcluster/rsession"
	"github.com/kevwan/rcluster/topo"
)

// sharedCache is the process-lifetime TopologyCache every Client for a
// given name shares, per spec.md §3 ("Process-wide state... keyed by
// ClusterConfig.name and lives for the process lifetime").
var sharedCache = topo.NewCache()

// sharedLocker deduplicates concurrent InitSlots calls across Clients in
// this process that share a cluster name.
var sharedLocker rsession.NamedLocker = rsession.NewSingleflightLocker()

// Client is the routing-core façade: configuration, single-flight
// initialization, dynamic command dispatch, and pipeline entry points.
type Client struct {
	cfg     Config
	cache   *topo.Cache
	locker  rsession.NamedLocker
	factory rsession.Factory

	poolsMu sync.Mutex
	pools   map[string]*pool.Pool

	pipeMu      sync.Mutex
	pipelining  bool
	pipelineBuf []pipelineItem
}

// pipelineItem is spec.md §3's PipelineRequest.
type pipelineItem struct {
	Cmd         string
	Key         string
	Args        []interface{}
	OriginIndex int
}

// New validates cfg and triggers initialization. factory, if nil, defaults
// to the radix.v2-backed NodeSession adapter.
func New(cfg Config, factory rsession.Factory) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = rsession.NewRadixFactory()
	}

	c := &Client{
		cfg:     cfg,
		cache:   sharedCache,
		locker:  sharedLocker,
		factory: factory,
		pools:   make(map[string]*pool.Pool),
	}
	if err := c.InitSlots(); err != nil {
		return nil, err
	}
	return c, nil
}

// InitSlots is the idempotent, single-flight initializer from spec.md
// §4.9: if the cache already has an entry for this cluster name, it
// returns immediately; otherwise it single-flights a SlotLoader run across
// every concurrent caller sharing this process and cluster name.
func (c *Client) InitSlots() error {
	if _, ok := c.cache.Get(c.cfg.Name); ok {
		return nil
	}

	doer, ok := c.locker.(rsession.SingleflightDoer)
	if !ok {
		return c.initSlotsWithBareLock()
	}

	_, err, _ := doer.Do("redis_cluster_slot_"+c.cfg.Name, func() (interface{}, error) {
		if _, ok := c.cache.Get(c.cfg.Name); ok {
			return nil, nil
		}
		return nil, c.loadAndPublish()
	})
	if err != nil {
		return err
	}
	return nil
}

func (c *Client) initSlotsWithBareLock() error {
	ctx := context.Background()
	h, err := c.locker.Lock(ctx, "redis_cluster_slot_"+c.cfg.Name)
	if err != nil {
		return wrapError(ConnectFailed, err, "acquire init lock")
	}
	defer c.locker.Unlock(h)

	if _, ok := c.cache.Get(c.cfg.Name); ok {
		return nil
	}
	return c.loadAndPublish()
}

func (c *Client) loadAndPublish() error {
	loader := &topo.Loader{
		Factory:              c.factory,
		ConnectionTimeout:    c.cfg.ConnectionTimeout,
		MaxConnectionAttempt: c.cfg.MaxConnectionAttempts,
		Password:             c.cfg.Auth,
	}
	topology, err := loader.Load(context.Background(), c.cfg.ServList)
	if err != nil {
		return wrapError(loadErrorKind(err), err, "load cluster topology")
	}
	c.cache.Replace(c.cfg.Name, topology)
	return nil
}

// loadErrorKind classifies a topo.Loader failure: if any seed rejected AUTH,
// the failure is AuthFailed, never just a generic ConnectFailed, per spec.md
// §7.
func loadErrorKind(err error) Kind {
	var authErr *topo.AuthError
	if errors.As(err, &authErr) {
		return AuthFailed
	}
	return ConnectFailed
}

// FetchSlots explicitly refreshes the topology. Best-effort: a failure is
// logged and returned, but never panics and never blocks other callers.
func (c *Client) FetchSlots() error {
	return c.refresh()
}

func (c *Client) refresh() error {
	loader := &topo.Loader{
		Factory:              c.factory,
		ConnectionTimeout:    c.cfg.ConnectionTimeout,
		MaxConnectionAttempt: c.cfg.MaxConnectionAttempts,
		Password:             c.cfg.Auth,
	}
	seeds := c.cfg.ServList
	if topology, ok := c.cache.Get(c.cfg.Name); ok {
		seeds = append(append([]topo.Node{}, topology.Servers...), c.cfg.ServList...)
	}
	topology, err := loader.Load(context.Background(), seeds)
	if err != nil {
		c.cfg.Logger.WithFields(map[string]interface{}{
			"cluster": c.cfg.Name,
		}).WithError(err).Warn("topology refresh failed")
		return wrapError(loadErrorKind(err), err, "refresh cluster topology")
	}
	c.cache.Replace(c.cfg.Name, topology)
	return nil
}

// refreshAsync runs FetchSlots in the background, never blocking the
// caller on its completion (spec.md §7's propagation policy).
func (c *Client) refreshAsync() {
	go func() {
		_ = c.refresh()
	}()
}

func (c *Client) topology() (*topo.Topology, error) {
	t, ok := c.cache.Get(c.cfg.Name)
	if !ok {
		return nil, newError(TopologyUnknown, nil, "no topology published for %q", c.cfg.Name)
	}
	return t, nil
}

// getPool returns (creating if necessary) the connection pool for addr.
func (c *Client) getPool(addr topo.Node) *pool.Pool {
	key := addr.Addr()
	c.poolsMu.Lock()
	defer c.poolsMu.Unlock()
	if p, ok := c.pools[key]; ok {
		return p
	}
	p, _ := pool.New(addr.IP, addr.Port, 1, c.cfg.KeepaliveCons, c.cfg.ConnectionTimeout, c.cfg.KeepaliveTimeout, c.cfg.Auth, c.factory)
	c.pools[key] = p
	return p
}

// newSession opens a session against node. Authentication happens once, in
// the pool's dial step (see pool.New's password parameter), so every session
// this returns — whether freshly dialed or reused from the idle pool, even
// one the background reaper has pinged in the meantime — is already
// authenticated; ReusedTimes() is not a reliable proxy for that, since the
// reaper's own PING also bumps it.
func (c *Client) newSession(node topo.Node) (rsession.NodeSession, error) {
	p := c.getPool(node)
	sess, err := p.Get()
	if err != nil {
		var authErr *pool.AuthError
		if errors.As(err, &authErr) {
			return nil, wrapError(AuthFailed, authErr.Err, "auth "+node.Addr())
		}
		return nil, wrapError(ConnectFailed, err, "connect "+node.Addr())
	}
	return sess, nil
}

func (c *Client) putSession(node topo.Node, sess rsession.NodeSession) {
	c.getPool(node).Put(sess)
}

// Do dispatches an arbitrary command through CommandExecutor. This is the
// dynamic command surface spec.md §6/§9 calls for: any command name not
// explicitly wrapped by a convenience method still routes through here.
// EVAL/EVALSHA have their own call shape (see Eval/EvalSha) and must not be
// issued through Do.
func (c *Client) Do(cmd string, key string, args ...interface{}) (interface{}, error) {
	if upper := strings.ToUpper(cmd); upper == "EVAL" || upper == "EVALSHA" {
		return nil, newError(ConfigInvalid, nil, "use Eval/EvalSha for %s", upper)
	}

	c.pipeMu.Lock()
	if c.pipelining {
		idx := len(c.pipelineBuf)
		c.pipelineBuf = append(c.pipelineBuf, pipelineItem{Cmd: cmd, Key: key, Args: args, OriginIndex: idx})
		c.pipeMu.Unlock()
		return nil, nil
	}
	c.pipeMu.Unlock()

	return c.execute(cmd, key, args)
}

// Get is a convenience wrapper over Do.
func (c *Client) Get(key string) (interface{}, error) { return c.Do("GET", key) }

// Set is a convenience wrapper over Do.
func (c *Client) Set(key string, value interface{}) (interface{}, error) {
	return c.Do("SET", key, value)
}

// Del is a convenience wrapper over Do.
func (c *Client) Del(key string) (interface{}, error) { return c.Do("DEL", key) }

// Close releases every pool this Client has opened. The shared topology
// cache entry for this cluster name is left in place for other Clients.
func (c *Client) Close() {
	c.poolsMu.Lock()
	defer c.poolsMu.Unlock()
	for addr, p := range c.pools {
		p.Empty()
		delete(c.pools, addr)
	}
}
