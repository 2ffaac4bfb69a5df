// Package router classifies intercepted requests into resource classes and
// binds each class to its caching strategy and owning partition.
package router

import (
	"net/http"
	"path"
	"strings"

	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

// Class 是请求的资源类别。
type Class string

const (
	ClassBypass      Class = "bypass"
	ClassExternal    Class = "external"
	ClassAPICritical Class = "api-critical"
	ClassAPI         Class = "api"
	ClassImage       Class = "image"
	ClassStatic      Class = "static"
	ClassPage        Class = "page"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".ico": {},
}

var staticExtensions = map[string]struct{}{
	".js": {}, ".css": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

var staticPrefixes = []string{"/_next/static/", "/static/", "/icons/"}

var staticDestinations = map[string]struct{}{
	"script": {}, "style": {}, "font": {}, "manifest": {},
}

// Classifier 持有同源判定与 API 前缀等只读规则。
type Classifier struct {
	hosts     map[string]struct{}
	apiPrefix string
	critical  map[string]struct{}
}

// NewClassifier 根据源站 host、别名、API 前缀与关键端点构造分类器。
func NewClassifier(originHost string, aliases []string, apiPrefix string, critical []string) *Classifier {
	hosts := make(map[string]struct{}, len(aliases)+1)
	for _, h := range append([]string{originHost}, aliases...) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	set := make(map[string]struct{}, len(critical))
	for _, p := range critical {
		set[p] = struct{}{}
	}
	return &Classifier{hosts: hosts, apiPrefix: apiPrefix, critical: set}
}

// Classify 按顺序匹配，第一个命中的规则生效。
func (c *Classifier) Classify(req *fetch.Request) Class {
	scheme := strings.ToLower(req.URL.Scheme)
	if (scheme != "http" && scheme != "https") || req.Method != http.MethodGet {
		return ClassBypass
	}
	if !c.SameOrigin(req) {
		return ClassExternal
	}

	p := req.URL.Path
	if strings.HasPrefix(p, c.apiPrefix) {
		if _, ok := c.critical[p]; ok {
			return ClassAPICritical
		}
		return ClassAPI
	}
	if isImage(req) {
		return ClassImage
	}
	if isStatic(req) {
		return ClassStatic
	}
	return ClassPage
}

// SameOrigin 判断请求 host 是否为源站或其别名。
func (c *Classifier) SameOrigin(req *fetch.Request) bool {
	host := strings.ToLower(req.URL.Host)
	if _, ok := c.hosts[host]; ok {
		return true
	}
	_, ok := c.hosts[strings.ToLower(req.URL.Hostname())]
	return ok
}

func isImage(req *fetch.Request) bool {
	if req.Destination() == "image" {
		return true
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(req.URL.Path))]
	return ok
}

func isStatic(req *fetch.Request) bool {
	p := req.URL.Path
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	if p == "/manifest.json" {
		return true
	}
	if _, ok := staticDestinations[req.Destination()]; ok {
		return true
	}
	_, ok := staticExtensions[strings.ToLower(path.Ext(p))]
	return ok
}
