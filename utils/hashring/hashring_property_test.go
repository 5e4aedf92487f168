package hashring

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRing_StabilityUnderNodeRemoval 节点下线只应迁移落在该节点上的 key，
// 其余 key 的归属保持不变
func TestRing_StabilityUnderNodeRemoval(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("keys on surviving nodes stay put", prop.ForAll(
		func(keys []string) bool {
			r := New(64)
			r.Add("node-1", 1)
			r.Add("node-2", 1)
			r.Add("node-3", 1)

			before := make(map[string]string, len(keys))
			for _, k := range keys {
				before[k] = r.Get(k)
			}

			r.Remove("node-3")

			for _, k := range keys {
				if before[k] == "node-3" {
					continue
				}
				if r.Get(k) != before[k] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("all keys resolve to a known node", prop.ForAll(
		func(n int) bool {
			r := New(32)
			r.Add("a", 1)
			r.Add("b", 2)

			node := r.Get("user:" + strconv.Itoa(n))
			return node == "a" || node == "b"
		},
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}
