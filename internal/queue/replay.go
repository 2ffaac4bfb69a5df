package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

var replayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offline_agent_queue_replayed_total",
	Help: "Total number of replayed offline mutations by queue and outcome",
}, []string{"queue", "outcome"}) // outcome: "success", "failed"

// Sync tags accepted by the background sync trigger.
const (
	TagBackgroundSync  = "background-sync"
	TagContactFormSync = "contact-form-sync"
	TagBookingSync     = "booking-sync"
	TagTestimonialSync = "testimonial-sync"
)

// ErrUnknownTag 表示同步标签无法识别。
var ErrUnknownTag = errors.New("unknown sync tag")

// QueuesForTag 返回同步标签对应的队列；空标签视为 background-sync。
func QueuesForTag(tag string) ([]Name, error) {
	switch tag {
	case "", TagBackgroundSync:
		return append([]Name(nil), Names...), nil
	case TagContactFormSync:
		return []Name{ContactForms}, nil
	case TagBookingSync:
		return []Name{Bookings}, nil
	case TagTestimonialSync:
		return []Name{Testimonials}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
}

// Broadcaster 向所有页面广播消息，control.Hub 满足该接口。
type Broadcaster interface {
	Broadcast(msg control.Message) int
}

// Result 汇总一次回放。
type Result struct {
	Processed int   `json:"processed"`
	Failed    int   `json:"failed"`
	Err       error `json:"-"`
}

// Replayer 将队列中的条目按创建顺序 POST 到对应端点。队列之间并行，队列内部串行。
type Replayer struct {
	store     Store
	network   fetch.Fetcher
	origin    *url.URL
	endpoints map[Name]string
	hub       Broadcaster
	logger    *logrus.Logger

	mu sync.Mutex
}

// NewReplayer 构造回放器；endpoints 为队列到同源路径的映射。
func NewReplayer(store Store, network fetch.Fetcher, origin *url.URL, endpoints map[string]string, hub Broadcaster, logger *logrus.Logger) *Replayer {
	mapped := make(map[Name]string, len(endpoints))
	for raw, endpoint := range endpoints {
		if name, err := ParseName(raw); err == nil {
			mapped[name] = endpoint
		}
	}
	return &Replayer{
		store:     store,
		network:   network,
		origin:    origin,
		endpoints: mapped,
		hub:       hub,
		logger:    logger,
	}
}

// Replay 广播 BackgroundSyncStart，回放 names 指定的队列，最后广播成功或失败。
// 同一时间只允许一次回放，后来的调用会等待前一次结束。
func (r *Replayer) Replay(ctx context.Context, names ...Name) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		names = Names
	}
	r.broadcast(control.SyncStart())

	var (
		processed int64
		failed    int64
		errsMu    sync.Mutex
		errs      []error
	)
	record := func(err error) {
		errsMu.Lock()
		errs = append(errs, err)
		errsMu.Unlock()
	}

	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			ok, bad, err := r.replayQueue(ctx, name, record)
			atomic.AddInt64(&processed, int64(ok))
			atomic.AddInt64(&failed, int64(bad))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		record(err)
	}

	result := Result{Processed: int(processed), Failed: int(failed)}
	if len(errs) > 0 {
		result.Err = errors.Join(errs...)
		r.broadcast(control.SyncFailed(result.Err, result.Processed))
	} else {
		r.broadcast(control.SyncSuccess(result.Processed))
	}
	return result
}

func (r *Replayer) replayQueue(ctx context.Context, name Name, record func(error)) (int, int, error) {
	endpoint, ok := r.endpoints[name]
	if !ok {
		return 0, 0, fmt.Errorf("%s: no endpoint configured", name)
	}
	items, err := r.store.ListPending(ctx, name)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: list pending: %w", name, err)
	}

	target := r.origin.ResolveReference(&url.URL{Path: endpoint})
	processed, failed := 0, 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}
		if err := r.replayItem(ctx, target, item); err != nil {
			failed++
			replayed.WithLabelValues(string(name), "failed").Inc()
			record(fmt.Errorf("%s #%d: %w", name, item.ID, err))
			r.logItem(item, err)
			continue
		}
		processed++
		replayed.WithLabelValues(string(name), "success").Inc()
	}
	return processed, failed, nil
}

func (r *Replayer) replayItem(ctx context.Context, target *url.URL, item Mutation) error {
	req := &fetch.Request{
		Method: http.MethodPost,
		URL:    target,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   item.Payload,
	}
	resp, err := r.network.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	if err := r.store.Remove(ctx, item.Queue, item.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("remove after replay: %w", err)
	}
	return nil
}

func (r *Replayer) broadcast(msg control.Message) {
	if r.hub != nil {
		r.hub.Broadcast(msg)
	}
}

func (r *Replayer) logItem(item Mutation, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WithError(err).WithFields(logrus.Fields{
		"action": "queue_replay",
		"queue":  item.Queue,
		"id":     item.ID,
	}).Warn("replay_failed")
}
