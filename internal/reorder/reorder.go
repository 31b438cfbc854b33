// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package reorder selects and orders maximal traces through a function's
// basic blocks and fixes up the jumps between them.
package reorder

import (
	"eta/internal/cfg"
	"eta/internal/hir"
	"eta/internal/lir"
)

// Func reorders fn's basic blocks into traces that maximize fall-through,
// then rewrites jumps so the result executes identically to the input.
func Func(fn *lir.Func) *lir.Func {
	g := cfg.Build(fn)
	traces := selectTraces(g)
	traces = orderTraces(g, traces)
	out := lir.NewFunc(fn.Name, fn.ABIName, fn.NumReturns)
	for _, stmt := range fixupJumps(g, traces) {
		out.Append(stmt)
	}
	return out
}

// selectTraces implements maximal-trace selection: repeatedly pick the
// unmarked seed with the smallest predecessor use count, then greedily
// grow forward choosing the unmarked successor with the longest maximal
// trace, memoized.
func selectTraces(g *cfg.Graph) [][]int {
	n := len(g.Blocks)
	if n == 0 {
		return nil
	}
	marked := make([]bool, n)
	useCount := make([]int, n)

	var traces [][]int
	memo := make(map[int]int) // block -> longest-trace-length-from-here, memoized per selection round

	bestSucc := func(b int) (int, bool) {
		best, bestLen, found := -1, -1, false
		for _, s := range g.Blocks[b].Succs {
			if marked[s] {
				continue
			}
			l, ok := memo[s]
			if !ok {
				l = traceLenFrom(g, s, marked)
				memo[s] = l
			}
			if l > bestLen {
				best, bestLen, found = s, l, true
			}
		}
		return best, found
	}

	for {
		seed := -1
		seedScore := -1
		for i := 0; i < n; i++ {
			if marked[i] {
				continue
			}
			if seed == -1 || useCount[i] < seedScore {
				seed, seedScore = i, useCount[i]
			}
		}
		if seed == -1 {
			break
		}

		memo = make(map[int]int)
		var trace []int
		cur := seed
		for {
			trace = append(trace, cur)
			marked[cur] = true
			next, ok := bestSucc(cur)
			if !ok {
				break
			}
			cur = next
		}
		for _, idx := range trace {
			for _, s := range g.Blocks[idx].Succs {
				useCount[s] += len(trace)
			}
		}
		traces = append(traces, trace)
	}
	return traces
}

// traceLenFrom computes the length of the maximal trace obtainable by
// greedily walking unmarked successors starting at b, without mutating
// global state (used as the memoized lookahead in bestSucc).
func traceLenFrom(g *cfg.Graph, b int, marked []bool) int {
	visited := map[int]bool{}
	length := 0
	cur := b
	for {
		if visited[cur] || marked[cur] {
			break
		}
		visited[cur] = true
		length++
		next := -1
		for _, s := range g.Blocks[cur].Succs {
			if !marked[s] && !visited[s] {
				next = s
				break
			}
		}
		if next == -1 {
			break
		}
		cur = next
	}
	return length
}

// orderTraces orders the selected traces: the trace containing the entry
// block goes first; thereafter, greedily place the
// trace whose first block is the closest successor (by original index)
// of the running last block, or, when no remaining trace starts after
// it, the trace starting nearest before it.
func orderTraces(g *cfg.Graph, traces [][]int) [][]int {
	if len(traces) == 0 {
		return traces
	}
	entryTrace := 0
	for i, tr := range traces {
		if tr[0] == g.Entry {
			entryTrace = i
			break
		}
	}
	traces[0], traces[entryTrace] = traces[entryTrace], traces[0]

	ordered := [][]int{traces[0]}
	remaining := append([][]int{}, traces[1:]...)
	lastBlock := traces[0][len(traces[0])-1]

	for len(remaining) > 0 {
		best := 0
		bestDist := -1
		for i, tr := range remaining {
			d := tr[0] - lastBlock
			if d < 0 {
				// a trace starting before the running last block ranks
				// behind every trace starting after it.
				d = len(g.Blocks) - d
			}
			if bestDist == -1 || d < bestDist {
				best, bestDist = i, d
			}
		}
		ordered = append(ordered, remaining[best])
		lastBlock = remaining[best][len(remaining[best])-1]
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

// fixupJumps rewrites jumps to match the chosen trace order: delete
// redundant intra-trace unconditional jumps, invert a conditional jump
// whose true successor is the trace's next block so the taken edge goes
// to the false target and the fall-through reaches the true target, and
// insert an explicit jump between traces
// whose boundary does not already fall through correctly.
func fixupJumps(g *cfg.Graph, traces [][]int) []lir.Stmt {
	var out []lir.Stmt
	for ti, tr := range traces {
		for bi, idx := range tr {
			blk := g.Blocks[idx]
			if blk.Label != "" {
				out = append(out, &lir.Label{Name: blk.Label})
			}
			stmts := blk.Stmts
			isLastInTrace := bi == len(tr)-1
			if len(stmts) == 0 {
				continue
			}
			last := stmts[len(stmts)-1]
			body := stmts[:len(stmts)-1]
			out = append(out, body...)

			switch term := last.(type) {
			case *lir.Jump:
				if !isLastInTrace {
					// the trace already places the target next; the jump
					// is redundant and dropped.
					continue
				}
				out = append(out, term)
			case *lir.CJump:
				var nextInTrace int
				hasNext := !isLastInTrace
				if hasNext {
					nextInTrace = tr[bi+1]
				}
				if hasNext && term.True == g.Blocks[nextInTrace].Label {
					// the true target is already next in program order: jump
					// on the inverted condition to the original false target,
					// and let the fall-through edge reach the true target.
					out = append(out, &lir.CJump{Cond: invert(term.Cond), True: term.False, False: g.Blocks[nextInTrace].Label})
				} else {
					out = append(out, term)
				}
			case *lir.Return:
				out = append(out, term)
			default:
				// last isn't a terminator at all: the block fell through
				// to a single successor in the original sequence. Only
				// synthesize an explicit jump when that successor is not
				// already the next block emitted.
				out = append(out, term)
				if isLastInTrace && len(blk.Succs) == 1 {
					fallsTo := blk.Succs[0]
					nextTracePos := -1
					if ti+1 < len(traces) {
						nextTracePos = traces[ti+1][0]
					}
					if fallsTo != nextTracePos {
						out = append(out, &lir.Jump{Target: g.Blocks[fallsTo].Label})
					}
				} else if !isLastInTrace && len(blk.Succs) == 1 && blk.Succs[0] != tr[bi+1] {
					out = append(out, &lir.Jump{Target: g.Blocks[blk.Succs[0]].Label})
				}
			}
		}
	}
	return out
}

func invert(cond hir.Expr) hir.Expr {
	return &hir.Bin{Op: hir.Xor, L: cond, R: &hir.Const{Value: 1}}
}
