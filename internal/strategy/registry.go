package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
)

// Name 标识一种缓存策略。
type Name string

const (
	NameCacheFirst           Name = "cache-first"
	NameNetworkFirst         Name = "network-first"
	NameStaleWhileRevalidate Name = "stale-while-revalidate"
	NamePassThrough          Name = "pass-through"
)

// Profile 描述一个请求类别使用的策略、分区层级与回退方式，供诊断端展示。
type Profile struct {
	Class       string     `json:"class"`
	Strategy    Name       `json:"strategy"`
	Kind        cache.Kind `json:"partition_kind,omitempty"`
	Fallback    string     `json:"fallback,omitempty"`
	Description string     `json:"description"`
}

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func newRegistry() *registry {
	return &registry{profiles: make(map[string]Profile)}
}

// Register 将类别策略加入全局注册表，重复类别会返回错误。
func Register(profile Profile) error {
	return globalRegistry.register(profile)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(profile Profile) {
	if err := Register(profile); err != nil {
		panic(err)
	}
}

// Resolve 返回类别对应的策略描述。
func Resolve(class string) (Profile, bool) {
	return globalRegistry.resolve(class)
}

// List 返回按类别排序的策略列表。
func List() []Profile {
	return globalRegistry.list()
}

func normalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}

func (r *registry) register(profile Profile) error {
	key := normalizeClass(profile.Class)
	if key == "" {
		return fmt.Errorf("profile class is required")
	}
	if profile.Strategy == "" {
		return fmt.Errorf("profile %s: strategy is required", key)
	}
	profile.Class = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[key]; exists {
		return fmt.Errorf("profile %s already registered", key)
	}
	r.profiles[key] = profile
	return nil
}

func (r *registry) resolve(class string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[normalizeClass(class)]
	return profile, ok
}

func (r *registry) list() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.profiles))
	for key := range r.profiles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Profile, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.profiles[key])
	}
	return result
}
