// dominators.go - 基本块排序与支配树计算
//
// 算法：
// 1. 从入口块 DFS 得到逆后序 (RPO)
// 2. 使用 Cooper-Harvey-Kennedy 的迭代算法计算直接支配者
//
// RPO 保证每个块出现在其支配者之后，因此可直接作为降级的遍历顺序。

package graph

// computeBlockOrder 计算逆后序并重排块编号
func computeBlockOrder(entry *Block) []*Block {
	visited := make(map[*Block]bool)
	var post []*Block

	var dfs func(b *Block)
	dfs = func(b *Block) {
		visited[b] = true
		for _, s := range b.Succs {
			if !visited[s] {
				dfs(s)
			}
		}
		post = append(post, b)
	}
	dfs(entry)

	order := make([]*Block, len(post))
	for i, b := range post {
		order[len(post)-1-i] = b
	}
	return order
}

// computeDominators 计算直接支配者
// 使用 Cooper 等人的简化算法，order 必须是逆后序
func computeDominators(order []*Block) {
	index := make(map[*Block]int, len(order))
	for i, b := range order {
		index[b] = i
		b.Dominator = nil
	}
	if len(order) == 0 {
		return
	}

	entry := order[0]
	idom := make(map[*Block]*Block, len(order))
	idom[entry] = entry

	intersect := func(b1, b2 *Block) *Block {
		f1, f2 := b1, b2
		for f1 != f2 {
			for index[f1] > index[f2] {
				f1 = idom[f1]
			}
			for index[f2] > index[f1] {
				f2 = idom[f2]
			}
		}
		return f1
	}

	// 迭代直到不动点
	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIdom *Block
			for _, p := range b.Preds {
				if _, ok := index[p]; !ok || idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	for _, b := range order[1:] {
		b.Dominator = idom[b]
	}
}
