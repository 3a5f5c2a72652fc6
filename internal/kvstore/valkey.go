package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

// redialInterval spaces out connection attempts while Valkey is down, so a
// burst of requests during an outage does not become a burst of dials.
const redialInterval = time.Second

// errValkeyUnavailable is returned while no client is connected and the next
// dial is not yet due.
var errValkeyUnavailable = errors.New("valkey unavailable")

// ValkeyConfig configures a ValkeyStore.
type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	Namespace string
	OpTimeout time.Duration

	// ConnectTimeout bounds each dial. Default: 2s.
	ConnectTimeout time.Duration
}

// ValkeyStore implements Store on top of valkey-go.
//
// valkey-go dials when a client is created, so the client is created on
// first use and re-created after a failed dial. Until then every call fails
// fast with an error, which the cache and the limiter treat as a miss.
type ValkeyStore struct {
	opts      valkey.ClientOption
	ns        namespaced
	opTimeout time.Duration
	now       func() time.Time

	mu       sync.Mutex
	client   valkey.Client
	dialing  bool
	nextDial time.Time
	closed   bool
}

// NewValkeyStore returns a store for cfg.Address. It does not dial; use Ping
// to check reachability.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey: empty address")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}
	opts.Dialer.Timeout = timeout

	return &ValkeyStore{
		opts:      opts,
		ns:        newNamespace(cfg.Namespace),
		opTimeout: cfg.OpTimeout,
		now:       time.Now,
	}, nil
}

// conn returns the connected client, dialing if none exists and a dial is
// due. Only one caller dials at a time; the rest fail fast meanwhile.
func (s *ValkeyStore) conn() (valkey.Client, error) {
	s.mu.Lock()
	if s.client != nil {
		c := s.client
		s.mu.Unlock()
		return c, nil
	}
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("valkey: store closed")
	}
	if s.dialing || s.now().Before(s.nextDial) {
		s.mu.Unlock()
		return nil, errValkeyUnavailable
	}
	s.dialing = true
	s.mu.Unlock()

	c, err := valkey.NewClient(s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialing = false
	if err != nil {
		s.nextDial = s.now().Add(redialInterval)
		return nil, fmt.Errorf("connect valkey: %w", err)
	}
	if s.closed {
		c.Close()
		return nil, fmt.Errorf("valkey: store closed")
	}
	s.client = c
	return c, nil
}

func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c, err := s.conn()
	if err != nil {
		return nil, false, err
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	cmd := c.B().Get().Key(s.ns.key(key)).Build()
	val, err := c.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	return val, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	c, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	cmd := c.B().Set().
		Key(s.ns.key(key)).
		Value(valkey.BinaryString(value)).
		PxMilliseconds(ttlMillis(ttl)).
		Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

func (s *ValkeyStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()

	cmd := c.B().Del().Key(s.ns.keys(keys)...).Build()
	if err := c.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

func (s *ValkeyStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrInvalidKey
	}
	c, err := s.conn()
	if err != nil {
		return 0, err
	}
	match := globEscape(s.ns.key(prefix)) + "*"

	removed := 0
	var cursor uint64
	for {
		scanCtx, cancel := opContext(ctx, s.opTimeout)
		scan := c.B().Scan().Cursor(cursor).Match(match).Count(scanBatch).Build()
		entry, err := c.Do(scanCtx, scan).AsScanEntry()
		cancel()
		if err != nil {
			return removed, fmt.Errorf("valkey scan %q: %w", match, err)
		}

		if len(entry.Elements) > 0 {
			delCtx, cancel := opContext(ctx, s.opTimeout)
			n, err := c.Do(delCtx, c.B().Del().Key(entry.Elements...).Build()).AsInt64()
			cancel()
			if err != nil {
				return removed, fmt.Errorf("valkey del batch: %w", err)
			}
			removed += int(n)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *ValkeyStore) Ping(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := opContext(ctx, s.opTimeout)
	defer cancel()
	return c.Do(ctx, c.B().Ping().Build()).Error()
}

func (s *ValkeyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

// ttlMillis rounds up to 1ms: PX 0 is rejected by the server, and the
// limiter can store a window with less than a millisecond left.
func ttlMillis(ttl time.Duration) int64 {
	return max(ttl.Milliseconds(), 1)
}

var _ Store = (*ValkeyStore)(nil)
