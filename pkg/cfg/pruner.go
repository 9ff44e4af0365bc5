package cfg

// Prune removes blocks without incoming edges until none remain, and returns
// how many were removed. The entry block is never removed. A JUMPDEST-headed
// block survives while the traversal left any jump unresolved or abandoned a
// branch, since such a jump may land on it.
func Prune(g *Graph) int {
	keepJumpDests := g.Report.Incomplete()
	removed := 0

	for {
		var orphans []uint32

		for _, b := range g.Blocks() {
			if b.Start == 0 || len(g.in[b.Start]) > 0 {
				continue
			}

			if keepJumpDests && b.IsJumpDest() {
				continue
			}

			orphans = append(orphans, b.Start)
		}

		if len(orphans) == 0 {
			break
		}

		for _, start := range orphans {
			g.removeBlock(start)
		}

		removed += len(orphans)
	}

	g.Report.PrunedBlocks += removed

	return removed
}
