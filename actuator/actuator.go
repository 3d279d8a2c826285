package actuator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"quote-trigger-go/config"
)

// Actuator 在屏幕区域内执行一次动作（点击），并提供可替换的等待。
type Actuator interface {
	PerformWithin(ctx context.Context, r config.Region) error
	Wait(d time.Duration)
}

// Rand 注入的随机源，便于测试固定取值。
type Rand interface {
	IntN(n int) int
}

// Point 屏幕坐标。
type Point struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// PickPoint 在 [StartX, EndX) x [StartY, EndY) 内均匀取点。
func PickPoint(r config.Region, rnd Rand) (Point, error) {
	if err := r.Validate(); err != nil {
		return Point{}, err
	}
	return Point{
		X: r.StartX + uint32(rnd.IntN(int(r.EndX-r.StartX))),
		Y: r.StartY + uint32(rnd.IntN(int(r.EndY-r.StartY))),
	}, nil
}

// Preview samples n points without actuating anything.
func Preview(r config.Region, n int, rnd Rand) ([]Point, error) {
	if n <= 0 {
		return nil, fmt.Errorf("preview count must be > 0, got %d", n)
	}
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		p, err := PickPoint(r, rnd)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand 使用 math/rand/v2 的全局源（并发安全）。
var DefaultRand Rand = globalRand{}

// lockedRand 固定种子的随机源，加锁后可被多个周期共享。
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededRand returns a goroutine-safe deterministic source.
func NewSeededRand(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// sleep 等待 d，d<=0 时立即返回。
func sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
