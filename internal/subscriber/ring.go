package subscriber

import (
	"sync"

	"github.com/11346070/HealthTrack/internal/models"
)

// Ring 固定容量的最近告警环形缓冲
// 满时淘汰最旧条目；只存在于进程内存中，重启后仅由实时广播流量重建
type Ring struct {
	mu       sync.RWMutex
	capacity int
	entries  []models.RecentAlert // 最旧在前，最新在后
}

// NewRing 创建环形缓冲
func NewRing(capacity int) *Ring {
	return &Ring{
		capacity: capacity,
		entries:  make([]models.RecentAlert, 0, capacity),
	}
}

// Push 插入新条目；已满时先淘汰最旧的
func (r *Ring) Push(entry models.RecentAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, entry)
}

// Snapshot 返回最多 limit 条最近的条目，最新在前
// limit <= 0 表示返回全部
func (r *Ring) Snapshot(limit int) []models.RecentAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.RecentAlert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out
}

// Len 当前条目数
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
