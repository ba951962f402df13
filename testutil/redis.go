package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// NewRedis starts a miniredis server and a client connected to it. Both are
// closed when the test ends. opts may adjust the client options.
func NewRedis(t testing.TB, opts ...func(*goredis.Options)) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	o := &goredis.Options{Addr: mr.Addr()}
	for _, opt := range opts {
		opt(o)
	}
	client := goredis.NewClient(o)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
