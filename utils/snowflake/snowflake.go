package snowflake

import (
	"fmt"
	"sync"
	"time"
)

const (
	// epoch 自定义纪元（2024-01-01 00:00:00 UTC，毫秒）
	epoch int64 = 1704067200000

	workerIDBits  uint8 = 10
	sequenceBits  uint8 = 12
	maxWorkerID         = int64(-1) ^ (int64(-1) << workerIDBits)
	maxSequence         = int64(-1) ^ (int64(-1) << sequenceBits)
	timestampShift      = workerIDBits + sequenceBits
)

// Generator 雪花ID生成器
// 产出按生成时间单调递增的ID，消息按ID排序即插入顺序
type Generator struct {
	mu       sync.Mutex
	workerID int64
	lastTime int64
	sequence int64
}

// NewGenerator 创建生成器，workerID 超界时按位截断
func NewGenerator(workerID int64) *Generator {
	return &Generator{workerID: workerID & maxWorkerID}
}

// Next 生成下一个ID
// 时钟回拨时自旋等待追平上次时间戳，同毫秒内序号溢出则等待下一毫秒
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	for now < g.lastTime {
		time.Sleep(time.Duration(g.lastTime-now) * time.Millisecond)
		now = time.Now().UnixMilli()
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTime {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	return (now-epoch)<<timestampShift | g.workerID<<sequenceBits | g.sequence
}

// NextString 生成十进制字符串形式的ID，作为对外的不透明消息ID
// 补零到 int64 最大位宽，字符串字典序与数值序一致
func (g *Generator) NextString() string {
	return fmt.Sprintf("%019d", g.Next())
}
