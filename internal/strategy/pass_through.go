package strategy

import (
	"context"

	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

// PassThrough 只走网络，不读写缓存，错误原样返回。
type PassThrough struct {
	network fetch.Fetcher
}

func NewPassThrough(network fetch.Fetcher) *PassThrough {
	return &PassThrough{network: network}
}

func (h *PassThrough) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	return h.network.Fetch(ctx, req)
}
