package pubsub

// Match reports whether channel matches pattern. The only metacharacter is
// "*", which matches any run of characters, including none. Every other byte
// is literal.
//
// path.Match is deliberately not used here: it gives "?", "[" and "\\"
// special meaning, and escaped channel fields may legitimately contain them.
func Match(pattern, channel string) bool {
	var (
		p, c     int
		star     = -1
		starMark int
	)

	for c < len(channel) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			// Remember the star and try matching it against nothing first.
			star = p
			starMark = c
			p++
		case p < len(pattern) && pattern[p] == channel[c]:
			p++
			c++
		case star >= 0:
			// Mismatch after a star: widen what the star consumed and retry.
			starMark++
			c = starMark
			p = star + 1
		default:
			return false
		}
	}

	// Trailing stars match the empty tail.
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
