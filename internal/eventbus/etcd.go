package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdBus fans events out to every worker watching the same etcd prefix.
// Post appends a new key per event; RegisterWeak starts a Watch on the
// source's prefix and invokes cb for every PUT seen from then on.
type EtcdBus struct {
	client *clientv3.Client
	prefix string

	mu     sync.Mutex
	nextID uint64
}

// New wraps an existing etcd client (typically shared with the DAO's
// etcdstore.Store) under the given key prefix.
func New(client *clientv3.Client, prefix string) *EtcdBus {
	return &EtcdBus{client: client, prefix: strings.TrimRight(prefix, "/")}
}

func (b *EtcdBus) sourceKey(source string) string {
	return fmt.Sprintf("%s/%s/", b.prefix, source)
}

type etcdSubscription struct {
	source string
	cancel context.CancelFunc
}

func (s *etcdSubscription) Source() string { return s.source }

func (b *EtcdBus) RegisterWeak(source string, cb Callback) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	watchCh := b.client.Watch(ctx, b.sourceKey(source), clientv3.WithPrefix())

	go func() {
		for resp := range watchCh {
			for _, wev := range resp.Events {
				if wev.Type != clientv3.EventTypePut {
					continue
				}
				var ev Event
				if err := json.Unmarshal(wev.Kv.Value, &ev); err != nil {
					continue
				}
				cb(ev)
			}
		}
	}()

	return &etcdSubscription{source: source, cancel: cancel}, nil
}

func (b *EtcdBus) Unregister(sub Subscription) error {
	es, ok := sub.(*etcdSubscription)
	if !ok {
		return fmt.Errorf("eventbus: foreign subscription type %T", sub)
	}
	es.cancel()
	return nil
}

func (b *EtcdBus) Post(source string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	id := atomic.AddUint64(&b.nextID, 1)
	key := fmt.Sprintf("%s%d", b.sourceKey(source), id)

	_, err = b.client.Put(context.Background(), key, string(data))
	if err != nil {
		return fmt.Errorf("eventbus: post event: %w", err)
	}
	return nil
}
