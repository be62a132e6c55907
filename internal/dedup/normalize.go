package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// packagingWords are quantity and packaging terms that never identify a product.
var packagingWords = wordSet(
	"kit", "pack", "conjunto", "unidade", "un", "pç", "peça", "unit", "piece",
)

// sizeUnits are the units removed when they follow a number.
var sizeUnits = wordSet(
	"gb", "mb", "kg", "g", "ml", "l", "cm", "mm", "m", "in", "pol", "polegadas",
)

// colourWords are removed so that colour variants compare equal.
var colourWords = wordSet(
	"preto", "branco", "azul", "vermelho", "verde", "amarelo", "rosa", "roxo", "cinza",
	"black", "white", "blue", "red", "green", "yellow", "pink", "purple", "gray", "grey",
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Normalize reduces a product name to its comparison key.
//
// The passes run in a fixed order: lower-case and collapse whitespace,
// delete punctuation, drop packaging words, drop size tokens, drop colours.
// Punctuation is deleted rather than replaced, so "kit-preto" becomes the
// single word "kitpreto" and survives the later passes.
func Normalize(name string) string {
	if name == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case isWordRune(r):
			return r
		default:
			return -1
		}
	}, s)

	words := strings.Fields(s)
	words = dropWords(words, packagingWords)
	words = dropSizes(words)
	words = dropWords(words, colourWords)

	return strings.Join(words, " ")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

func dropWords(words []string, vocab map[string]struct{}) []string {
	out := words[:0]
	for _, w := range words {
		if _, ok := vocab[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}

// dropSizes removes "<digits><unit>" words and "<digits> <unit>" word pairs.
func dropSizes(words []string) []string {
	out := words[:0]
	for i := 0; i < len(words); i++ {
		w := words[i]
		if isDigits(w) && i+1 < len(words) {
			if _, ok := sizeUnits[words[i+1]]; ok {
				i++
				continue
			}
		}
		if isSizeToken(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isSizeToken(w string) bool {
	end := strings.IndexFunc(w, func(r rune) bool { return !unicode.IsDigit(r) })
	if end <= 0 {
		return false
	}
	_, ok := sizeUnits[w[end:]]
	return ok
}

func isDigits(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
