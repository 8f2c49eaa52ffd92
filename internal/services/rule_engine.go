package services

import (
	"math/rand"
	"sync"
	"time"
)

// RuleEngine 随机数来源，后台任务与主循环共用，需要加锁
type RuleEngine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRuleEngine() *RuleEngine {
	return NewRuleEngineWithSeed(time.Now().UnixNano())
}

// NewRuleEngineWithSeed 固定种子，测试用
func NewRuleEngineWithSeed(seed int64) *RuleEngine {
	return &RuleEngine{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// CheckResult 检定结果
type CheckResult struct {
	Roll     int  `json:"roll"`
	Modifier int  `json:"modifier"`
	Target   int  `json:"target"`
	Success  bool `json:"success"`
	Critical bool `json:"critical"`
}

// RollD20 投D20骰子
func (re *RuleEngine) RollD20() int {
	return re.Intn(20) + 1
}

// Check 执行检定
func (re *RuleEngine) Check(modifier int, difficulty int) CheckResult {
	roll := re.RollD20()

	result := CheckResult{
		Roll:     roll,
		Modifier: modifier,
		Target:   difficulty,
		Success:  roll+modifier >= difficulty,
		Critical: roll == 20 || roll == 1,
	}

	// 大成功 / 大失败
	if roll == 20 {
		result.Success = true
	}
	if roll == 1 {
		result.Success = false
	}

	return result
}

// Intn [0,n)
func (re *RuleEngine) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.rng.Intn(n)
}

// Float64 [0,1)
func (re *RuleEngine) Float64() float64 {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.rng.Float64()
}

// Chance 以概率p返回true
func (re *RuleEngine) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return re.Float64() < p
}

// WeightedSample 按权重不放回抽取至多k个下标，非正权重按1处理
func (re *RuleEngine) WeightedSample(weights []float64, k int) []int {
	remaining := make([]int, len(weights))
	for i := range weights {
		remaining[i] = i
	}

	re.mu.Lock()
	defer re.mu.Unlock()

	var picked []int
	for len(picked) < k && len(remaining) > 0 {
		total := 0.0
		for _, idx := range remaining {
			total += sampleWeight(weights[idx])
		}
		r := re.rng.Float64() * total
		chosen := len(remaining) - 1
		for pos, idx := range remaining {
			r -= sampleWeight(weights[idx])
			if r < 0 {
				chosen = pos
				break
			}
		}
		picked = append(picked, remaining[chosen])
		remaining = append(remaining[:chosen], remaining[chosen+1:]...)
	}
	return picked
}

func sampleWeight(w float64) float64 {
	if w < 1 {
		return 1
	}
	return w
}
