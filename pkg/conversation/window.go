package conversation

// TruncateContext selects the messages of path that are sent for completion.
//
// path[0] must be the root and is always kept, even when its own tokens exceed
// the budget. The remaining messages are taken from the tail backwards while
// the running total, starting at the root's tokens, stays within budget. The
// first message that does not fit ends the walk, so the result is the root
// followed by a contiguous suffix of path in chronological order.
func TruncateContext(path []*Node, budget int) []*Node {
	if len(path) == 0 {
		return nil
	}

	total := path[0].Tokens
	start := len(path)
	for i := len(path) - 1; i >= 1; i-- {
		if total+path[i].Tokens > budget {
			break
		}
		total += path[i].Tokens
		start = i
	}

	ret := make([]*Node, 0, 1+len(path)-start)
	ret = append(ret, path[0])
	return append(ret, path[start:]...)
}

// ContextTotal sums the tokens of a context.
func ContextTotal(context []*Node) int {
	total := 0
	for _, n := range context {
		total += n.Tokens
	}
	return total
}
