package hub

import "windturbine/turbine-common/models"

// Window 固定容量的最近读数环形缓冲，非并发安全（由 Hub 加锁）
type Window struct {
	buf   []models.SensorReading
	start int
	size  int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]models.SensorReading, capacity)}
}

// Add 追加读数，满时覆盖最旧的一条
func (w *Window) Add(r models.SensorReading) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = r
		w.size++
		return
	}
	w.buf[w.start] = r
	w.start = (w.start + 1) % len(w.buf)
}

// Snapshot 按时间顺序（旧→新）返回副本
func (w *Window) Snapshot() []models.SensorReading {
	out := make([]models.SensorReading, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

func (w *Window) Len() int { return w.size }

func (w *Window) Cap() int { return len(w.buf) }
