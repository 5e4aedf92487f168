package hashring

import (
	"sort"
	"strconv"
	"sync"

	"github.com/twmb/murmur3"
)

// Ring 一致性哈希环，支持权重（以虚拟节点数量体现）
// 实时层用它把 user:{id} 房间固定到某个网关节点，跨节点事件经 redis 频道转发
type Ring struct {
	mu       sync.RWMutex
	replicas int      // 每个节点的基础虚拟节点数
	ring     []uint32 // 有序的哈希环（按hash升序）

	nodesMap map[uint32]string // 哈希值 -> 节点名
	weights  map[string]int    // 节点名 -> 权重（额外虚拟节点系数）
}

// New 创建哈希环，replicas 表示每个真实节点的基础虚拟节点数（推荐 100~200）
func New(replicas int) *Ring {
	if replicas <= 0 {
		replicas = 128
	}
	return &Ring{
		replicas: replicas,
		nodesMap: make(map[uint32]string),
		weights:  make(map[string]int),
	}
}

func ringHash(b []byte) uint32 {
	return murmur3.Sum32(b)
}

// Add 添加一个节点，weight 为权重（>=1），影响虚拟节点数量
func (r *Ring) Add(node string, weight int) {
	if weight <= 0 {
		weight = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// 若已存在，先移除后重建，确保权重更新
	if _, ok := r.weights[node]; ok {
		r.removeLocked(node)
	}

	r.weights[node] = weight
	total := r.replicas * weight

	for i := 0; i < total; i++ {
		hv := ringHash([]byte(node + "#" + strconv.Itoa(i)))
		// 哈希冲突时线性探测递增，避免覆盖
		for {
			if _, exists := r.nodesMap[hv]; !exists {
				break
			}
			hv++
		}
		r.ring = append(r.ring, hv)
		r.nodesMap[hv] = node
	}
	sort.Slice(r.ring, func(i, j int) bool { return r.ring[i] < r.ring[j] })
}

// Remove 移除节点及其全部虚拟节点
func (r *Ring) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(node)
}

func (r *Ring) removeLocked(node string) {
	if _, ok := r.weights[node]; !ok {
		return
	}
	delete(r.weights, node)

	kept := r.ring[:0]
	for _, hv := range r.ring {
		if r.nodesMap[hv] == node {
			delete(r.nodesMap, hv)
			continue
		}
		kept = append(kept, hv)
	}
	r.ring = kept
}

// Get 返回 key 顺时针方向最近的节点；环为空时返回空串
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.ring) == 0 {
		return ""
	}
	hv := ringHash([]byte(key))
	idx := sort.Search(len(r.ring), func(i int) bool { return r.ring[i] >= hv })
	if idx == len(r.ring) {
		idx = 0
	}
	return r.nodesMap[r.ring[idx]]
}

// Nodes 返回当前全部真实节点
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]string, 0, len(r.weights))
	for node := range r.weights {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
