package service

import (
	"strings"
	"text/scanner"
)

const (
	shingleSize = 3
	// fingerprints smaller than this are too generic to compare
	minShingles = 8
)

// pythonWords keep their spelling in a fingerprint; every other identifier
// collapses to ID so renaming variables does not hide a copy.
var pythonWords = map[string]bool{
	"and": true, "as": true, "assert": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "False": true,
	"finally": true, "for": true, "from": true, "global": true, "if": true, "import": true,
	"in": true, "is": true, "lambda": true, "None": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "True": true, "try": true,
	"while": true, "with": true, "yield": true,
	"append": true, "len": true, "range": true, "print": true, "min": true, "max": true,
	"sorted": true, "heapq": true, "deque": true, "dict": true, "list": true, "set": true,
}

// Fingerprint is the set of token trigrams of a Python source.
type Fingerprint map[string]struct{}

// NewFingerprint tokenises source, drops comments and normalises identifiers
// and literals before shingling.
func NewFingerprint(source string) Fingerprint {
	tokens := pythonTokens(source)
	fingerprint := make(Fingerprint)
	for i := 0; i+shingleSize <= len(tokens); i++ {
		fingerprint[strings.Join(tokens[i:i+shingleSize], " ")] = struct{}{}
	}
	return fingerprint
}

// Similarity is the Jaccard index of two fingerprints.
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	if len(f) == 0 || len(other) == 0 {
		return 0
	}
	shared := 0
	for shingle := range f {
		if _, ok := other[shingle]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(f)+len(other)-shared)
}

// SimilarPair names two sources, by index, whose similarity exceeds the threshold.
type SimilarPair struct {
	First      int
	Second     int
	Similarity float64
}

// FindSimilar compares every pair of sources. Empty and very short sources are skipped.
func FindSimilar(sources []string, threshold float64) []SimilarPair {
	fingerprints := make([]Fingerprint, len(sources))
	for i, source := range sources {
		if fp := NewFingerprint(source); len(fp) >= minShingles {
			fingerprints[i] = fp
		}
	}

	var pairs []SimilarPair
	for i := range fingerprints {
		if fingerprints[i] == nil {
			continue
		}
		for j := i + 1; j < len(fingerprints); j++ {
			if fingerprints[j] == nil {
				continue
			}
			if similarity := fingerprints[i].Similarity(fingerprints[j]); similarity > threshold {
				pairs = append(pairs, SimilarPair{First: i, Second: j, Similarity: similarity})
			}
		}
	}
	return pairs
}

func pythonTokens(source string) []string {
	var sc scanner.Scanner
	sc.Init(strings.NewReader(stripComments(source)))
	sc.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanChars
	sc.Error = func(*scanner.Scanner, string) {}

	var tokens []string
	for tok := sc.Scan(); tok != scanner.EOF; tok = sc.Scan() {
		switch tok {
		case scanner.Ident:
			if text := sc.TokenText(); pythonWords[text] {
				tokens = append(tokens, text)
			} else {
				tokens = append(tokens, "ID")
			}
		case scanner.Int, scanner.Float:
			tokens = append(tokens, "NUM")
		case scanner.String, scanner.Char:
			tokens = append(tokens, "STR")
		default:
			tokens = append(tokens, sc.TokenText())
		}
	}
	return tokens
}

// stripComments cuts each line at a '#' that is outside a quoted string.
func stripComments(source string) string {
	var b strings.Builder
	for _, line := range strings.Split(source, "\n") {
		var quote rune
		cut := len(line)
	scan:
		for i, r := range line {
			switch {
			case quote != 0:
				if r == quote {
					quote = 0
				}
			case r == '"' || r == '\'':
				quote = r
			case r == '#':
				cut = i
				break scan
			}
		}
		b.WriteString(line[:cut])
		b.WriteByte('\n')
	}
	return b.String()
}
