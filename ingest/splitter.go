package ingest

import (
	"strings"
	"unicode"
)

// splitText cuts text into pieces of at most maxChars characters with
// roughly overlapChars of trailing context repeated at each boundary.
// Splitting is recursive: paragraph boundaries first, then sentences, then
// words, so pieces break at the most natural boundary available. Trailing
// partial text is never dropped.
func splitText(text string, maxChars, overlapChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}
	return packSegments(segment(text, maxChars), maxChars, overlapChars)
}

// segment recursively breaks text into pieces no longer than maxChars.
func segment(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	if paras := strings.Split(text, "\n\n"); len(paras) > 1 {
		var segs []string
		for _, p := range paras {
			segs = append(segs, segment(p, maxChars)...)
		}
		return segs
	}

	var segs []string
	start, last := 0, 0
	for _, b := range sentenceBoundaries(text) {
		if b-start > maxChars {
			if last > start {
				if s := strings.TrimSpace(text[start:last]); s != "" {
					segs = append(segs, s)
				}
				start = last
			}
			if b-start > maxChars {
				segs = append(segs, segmentWords(text[start:b], maxChars)...)
				start = b
			}
		}
		last = b
	}
	rest := strings.TrimSpace(text[start:])
	if rest == "" {
		return segs
	}
	if len(rest) <= maxChars {
		return append(segs, rest)
	}
	if start == 0 {
		// No usable sentence boundary in range.
		return segmentWords(text, maxChars)
	}
	return append(segs, segment(rest, maxChars)...)
}

// sentenceBoundaries returns byte offsets just past each sentence-ending
// punctuation mark followed by whitespace. Dots inside decimal numbers do
// not count.
func sentenceBoundaries(text string) []int {
	var out []int
	for i, r := range text {
		switch r {
		case '。', '！', '？':
			out = append(out, i+len(string(r)))
		case '.', '!', '?':
			if r == '.' && i > 0 && i+1 < len(text) &&
				isDigit(text[i-1]) && isDigit(text[i+1]) {
				continue
			}
			if i+1 >= len(text) {
				out = append(out, len(text))
			} else if next := rune(text[i+1]); unicode.IsSpace(next) {
				out = append(out, i+2)
			}
		}
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// segmentWords splits on whitespace, greedily packing words up to maxChars.
// A single word longer than maxChars is hard-cut.
func segmentWords(text string, maxChars int) []string {
	var segs []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			segs = append(segs, s)
		}
		cur.Reset()
	}
	for _, w := range strings.Fields(text) {
		if len(w) > maxChars {
			flush()
			for len(w) > maxChars {
				segs = append(segs, w[:maxChars])
				w = w[maxChars:]
			}
			cur.WriteString(w)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	flush()
	return segs
}

// packSegments greedily merges segments into chunks of at most maxChars,
// carrying an overlap suffix from each emitted chunk into the next.
func packSegments(segs []string, maxChars, overlapChars int) []string {
	var chunks []string
	var cur strings.Builder
	for _, seg := range segs {
		if cur.Len() > 0 && cur.Len()+1+len(seg) > maxChars {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if ov := overlapSuffix(chunk, overlapChars); ov != "" && len(ov)+1+len(seg) <= maxChars {
				cur.WriteString(ov)
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(seg)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// overlapSuffix returns the last n characters of text, trimmed forward to a
// word boundary.
func overlapSuffix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	suffix := text[len(text)-n:]
	if idx := strings.IndexAny(suffix, " \n"); idx >= 0 {
		suffix = suffix[idx+1:]
	}
	return strings.TrimSpace(suffix)
}
