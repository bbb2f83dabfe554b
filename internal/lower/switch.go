// switch.go - 多路分支的策略选择与降级

package lower

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
)

// SwitchStrategy switch 的降级形状
type SwitchStrategy int

const (
	SwitchDefaultOnly SwitchStrategy = iota // 没有键，直接跳到默认分支
	SwitchTable                             // 跳转表
	SwitchRanges                            // 区间比较
	SwitchSequential                        // 逐个比较
)

var switchStrategyNames = [...]string{"default-only", "table", "ranges", "sequential"}

// String 返回策略名称
func (s SwitchStrategy) String() string {
	if s >= 0 && int(s) < len(switchStrategyNames) {
		return switchStrategyNames[s]
	}
	return "unknown"
}

// SwitchHeuristics 策略选择阈值
type SwitchHeuristics struct {
	MinTableKeys    int     // 使用跳转表的最少键数
	MinTableDensity float64 // 键数 / 键跨度 的下限
	MaxTableSpan    int64   // 跳转表最大项数
	MaxRanges       int     // 区间比较的最多区间数
	MinKeysPerRange float64 // 区间比较时每个区间平均键数下限
}

// DefaultSwitchHeuristics 默认阈值
func DefaultSwitchHeuristics() SwitchHeuristics {
	return SwitchHeuristics{
		MinTableKeys:    4,
		MinTableDensity: 0.5,
		MaxTableSpan:    1 << 16,
		MaxRanges:       8,
		MinKeysPerRange: 3,
	}
}

// countRuns 统计连续键的段数（keys 已严格递增）
func countRuns(keys []int64) int {
	if len(keys) == 0 {
		return 0
	}
	runs := 1
	for i := 1; i < len(keys); i++ {
		if keys[i] != keys[i-1]+1 {
			runs++
		}
	}
	return runs
}

// SelectSwitchStrategy 按键分布选择降级形状；结果只取决于键集合与阈值
func SelectSwitchStrategy(keys []int64, h SwitchHeuristics) SwitchStrategy {
	n := len(keys)
	if n == 0 {
		return SwitchDefaultOnly
	}
	// 用无符号差避免 int64 溢出
	diff := uint64(keys[n-1]) - uint64(keys[0])
	if n >= h.MinTableKeys && diff < uint64(h.MaxTableSpan) && float64(n)/float64(diff+1) >= h.MinTableDensity {
		return SwitchTable
	}
	if runs := countRuns(keys); runs <= h.MaxRanges && float64(n)/float64(runs) >= h.MinKeysPerRange {
		return SwitchRanges
	}
	return SwitchSequential
}

// switchRanges 把键切分为目标相同的连续区间
func switchRanges(keys []int64, targets []*lir.Block) []SwitchRange {
	var ranges []SwitchRange
	for i, k := range keys {
		if last := len(ranges) - 1; last >= 0 && ranges[last].High+1 == k && ranges[last].Target == targets[i] {
			ranges[last].High = k
			continue
		}
		ranges = append(ranges, SwitchRange{Low: k, High: k, Target: targets[i]})
	}
	return ranges
}

func lowerSwitch(gen *Generator, n *graph.Node) error {
	info := n.Switch
	def := gen.blockFor(n.Successors[info.DefaultSuccessorIndex()])
	keys := info.Keys
	targets := make([]*lir.Block, len(keys))
	for i := range keys {
		targets[i] = gen.blockFor(n.Successors[info.KeySuccessors[i]])
	}

	strategy := SelectSwitchStrategy(keys, gen.opts.Switch)
	gen.log.Debug("switch strategy",
		zap.Int("node", n.ID), zap.Int("keys", len(keys)), zap.Stringer("strategy", strategy))

	if strategy == SwitchDefaultOnly {
		gen.backend.EmitJump(def)
		return nil
	}
	key := gen.Load(gen.operand(n.Input(0)))

	switch strategy {
	case SwitchTable:
		low := keys[0]
		table := make([]*lir.Block, keys[len(keys)-1]-low+1)
		for i := range table {
			table[i] = def
		}
		for i, k := range keys {
			table[k-low] = targets[i]
		}
		return gen.backend.EmitTableSwitch(low, def, table, key)
	case SwitchRanges:
		return gen.backend.EmitSwitchRanges(switchRanges(keys, targets), def, key)
	case SwitchSequential:
		// 概率高的键先比较
		order := make([]int, len(keys))
		for i := range order {
			order[i] = i
		}
		if len(info.KeyProbabilities) >= len(keys) {
			sort.SliceStable(order, func(a, b int) bool {
				return info.KeyProbabilities[order[a]] > info.KeyProbabilities[order[b]]
			})
		}
		sortedKeys := make([]int64, len(keys))
		sortedTargets := make([]*lir.Block, len(keys))
		for i, idx := range order {
			sortedKeys[i] = keys[idx]
			sortedTargets[i] = targets[idx]
		}
		return gen.backend.EmitSequentialSwitch(sortedKeys, sortedTargets, def, key)
	}
	return errors.ShouldNotReachHere("switch strategy " + strategy.String())
}
