package router

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/strategy"
)

func init() {
	for _, profile := range profiles {
		strategy.MustRegister(profile)
	}
}

var profiles = []strategy.Profile{
	{Class: string(ClassBypass), Strategy: strategy.NamePassThrough, Description: "non-GET or non-HTTP requests, never cached"},
	{Class: string(ClassExternal), Strategy: strategy.NamePassThrough, Description: "cross-origin requests"},
	{Class: string(ClassAPICritical), Strategy: strategy.NameStaleWhileRevalidate, Kind: cache.KindAPI, Fallback: "offline-api", Description: "critical API endpoints, warmed on activation"},
	{Class: string(ClassAPI), Strategy: strategy.NameNetworkFirst, Kind: cache.KindAPI, Fallback: "offline-api", Description: "same-origin API requests"},
	{Class: string(ClassImage), Strategy: strategy.NameCacheFirst, Kind: cache.KindImages, Fallback: "placeholder-image", Description: "images by destination or extension"},
	{Class: string(ClassStatic), Strategy: strategy.NameCacheFirst, Kind: cache.KindStatic, Description: "build assets, icons, fonts and the web manifest"},
	{Class: string(ClassPage), Strategy: strategy.NameNetworkFirst, Kind: cache.KindDynamic, Fallback: "page-chain", Description: "navigations and everything else"},
}

// Options 描述一个发布版本的路由所需的依赖。
type Options struct {
	AppName     string
	Release     string
	OriginHost  string
	Aliases     []string
	APIPrefix   string
	Critical    []string
	OfflinePage string
	Timeout     time.Duration
	MaxAges     cache.MaxAges
	Store       cache.Store
	Network     fetch.Fetcher
	Logger      *logrus.Logger
}

// Decision 是路由结果：类别、所属分区（bypass/external 为零值）与处理器。
type Decision struct {
	Class     Class
	Partition cache.Partition
	Handler   strategy.Handler
}

// Router 将请求分类并派发到对应策略。每个发布版本一个实例。
type Router struct {
	release    string
	classifier *Classifier
	decisions  map[Class]Decision
	swr        *strategy.StaleWhileRevalidate
}

// New 按发布版本构造全部类别的策略处理器。
func New(opts Options) *Router {
	partition := func(kind cache.Kind) cache.Partition {
		return cache.Partition{
			Name:   cache.PartitionName(opts.AppName, kind, opts.Release),
			Kind:   kind,
			MaxAge: opts.MaxAges.For(kind),
		}
	}
	writer := func(kind cache.Kind) cache.PartitionWriter {
		return cache.NewPartitionWriter(opts.Store, partition(kind))
	}

	apiFallback := strategy.APIFallback(opts.Store, opts.Logger)
	pageFallback := strategy.PageFallback(opts.Store, opts.OfflinePage, opts.Logger)
	passThrough := strategy.NewPassThrough(opts.Network)

	api := strategy.NewNetworkFirst(writer(cache.KindAPI), opts.Network, apiFallback, opts.Timeout, opts.Logger)
	swr := strategy.NewStaleWhileRevalidate(writer(cache.KindAPI), opts.Network, api, opts.Logger)

	decisions := map[Class]Decision{
		ClassBypass:      {Class: ClassBypass, Handler: passThrough},
		ClassExternal:    {Class: ClassExternal, Handler: passThrough},
		ClassAPICritical: {Class: ClassAPICritical, Partition: partition(cache.KindAPI), Handler: swr},
		ClassAPI:         {Class: ClassAPI, Partition: partition(cache.KindAPI), Handler: api},
		ClassImage: {
			Class:     ClassImage,
			Partition: partition(cache.KindImages),
			Handler:   strategy.NewCacheFirst(writer(cache.KindImages), opts.Network, strategy.PlaceholderImage(), opts.Logger),
		},
		ClassStatic: {
			Class:     ClassStatic,
			Partition: partition(cache.KindStatic),
			Handler:   strategy.NewCacheFirst(writer(cache.KindStatic), opts.Network, nil, opts.Logger),
		},
		ClassPage: {
			Class:     ClassPage,
			Partition: partition(cache.KindDynamic),
			Handler:   strategy.NewNetworkFirst(writer(cache.KindDynamic), opts.Network, pageFallback, opts.Timeout, opts.Logger),
		},
	}

	return &Router{
		release:    opts.Release,
		classifier: NewClassifier(opts.OriginHost, opts.Aliases, opts.APIPrefix, opts.Critical),
		decisions:  decisions,
		swr:        swr,
	}
}

// Route 返回请求的路由结果。
func (r *Router) Route(req *fetch.Request) Decision {
	return r.decisions[r.classifier.Classify(req)]
}

// Handle 分类后直接执行对应策略。
func (r *Router) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, Decision, error) {
	decision := r.Route(req)
	resp, err := decision.Handler.Handle(ctx, req)
	return resp, decision, err
}

// Release 返回路由写入的分区所属的发布版本。
func (r *Router) Release() string {
	return r.release
}

// Classifier 暴露分类器，供预缓存判断同源。
func (r *Router) Classifier() *Classifier {
	return r.classifier
}

// Drain 等待后台刷新结束。
func (r *Router) Drain() {
	r.swr.Drain()
}
