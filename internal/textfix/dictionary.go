package textfix

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
)

const (
	maxEditDistance = 2
	prefixLength    = 7
)

// Dictionary is a prefix-indexed edit-distance dictionary. Index keys
// are delete-variants (up to maxEditDistance deletions) of each term's
// first prefixLength runes, so a lookup only has to verify a small
// candidate set instead of scanning every term.
type Dictionary struct {
	terms map[string]int64    // lowercased term -> frequency
	forms map[string]string   // lowercased term -> original casing
	index map[string][]string // delete-variant -> lowercased terms
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		terms: make(map[string]int64),
		forms: make(map[string]string),
		index: make(map[string][]string),
	}
}

// LoadDictionary reads a frequency dictionary ("term count" per line,
// space separated) from disk.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	d := NewDictionary()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		count := int64(1)
		if len(fields) > 1 {
			if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				count = n
			}
		}
		d.Add(fields[0], count)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return d, nil
}

// Add inserts a term with its corpus frequency.
func (d *Dictionary) Add(term string, count int64) {
	if term == "" {
		return
	}
	lower := strings.ToLower(term)
	if _, seen := d.terms[lower]; !seen {
		for variant := range deleteVariants(prefixOf(lower), maxEditDistance) {
			d.index[variant] = append(d.index[variant], lower)
		}
	}
	d.terms[lower] += count
	d.forms[lower] = term
}

// Len reports the number of distinct terms.
func (d *Dictionary) Len() int {
	return len(d.terms)
}

// Lookup returns the closest known term within maxEditDistance of
// token, preferring smaller distance, then higher frequency. The
// second return is false when no term qualifies, so unknown proper
// nouns and numbers stay untouched.
func (d *Dictionary) Lookup(token string) (string, bool) {
	if token == "" || d.Len() == 0 {
		return "", false
	}
	lower := strings.ToLower(token)
	if _, ok := d.terms[lower]; ok {
		// Known word: keep the writer's casing.
		return token, true
	}

	seen := make(map[string]struct{})
	best := ""
	bestDist := maxEditDistance + 1
	var bestFreq int64

	params := levenshtein.NewParams().MaxCost(maxEditDistance + 1)
	for variant := range deleteVariants(prefixOf(lower), maxEditDistance) {
		for _, cand := range d.index[variant] {
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			dist := levenshtein.Distance(lower, cand, params)
			if dist > maxEditDistance {
				continue
			}
			freq := d.terms[cand]
			if dist < bestDist || (dist == bestDist && freq > bestFreq) {
				best, bestDist, bestFreq = cand, dist, freq
			}
		}
	}
	if best == "" {
		return "", false
	}
	return d.forms[best], true
}

func prefixOf(term string) string {
	runes := []rune(term)
	if len(runes) > prefixLength {
		runes = runes[:prefixLength]
	}
	return string(runes)
}

// deleteVariants returns term plus every string reachable by deleting
// up to depth runes.
func deleteVariants(term string, depth int) map[string]struct{} {
	variants := map[string]struct{}{term: {}}
	frontier := []string{term}
	for d := 0; d < depth; d++ {
		var next []string
		for _, v := range frontier {
			runes := []rune(v)
			for i := range runes {
				del := string(runes[:i]) + string(runes[i+1:])
				if _, ok := variants[del]; !ok {
					variants[del] = struct{}{}
					next = append(next, del)
				}
			}
		}
		frontier = next
	}
	return variants
}
