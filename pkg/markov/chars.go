package markov

import "strings"

// UnknownReading is the reading the IPA dictionary reports for a feature it
// does not have. Tokens carrying it have length 0 under the matching metric.
const UnknownReading = "*"

const (
	// syllableChars attach to the preceding sound and never start a syllable:
	// the long-vowel mark, the geminate marker and the moraic nasal.
	syllableChars = "ーッンっん"

	// lowerCaseChars are small kana pronounced together with the previous
	// character. They are a unit of their own when counting morae.
	lowerCaseChars = "ァィゥェォャュョヮぁぃぅぇぉゃゅょゎ"

	// symbolChars are never counted as a sound under any metric.
	symbolChars = "～「」。、!！?？\"#$%&'()（）-―=＝^＾|\\｜￥@`[]{}｛｝;；:：+＋*＊<＜>＞_・『』…♪"
)

func isSymbolChar(r rune) bool {
	return strings.ContainsRune(symbolChars, r)
}

func isSyllableChar(r rune) bool {
	return strings.ContainsRune(syllableChars, r)
}

func isLowerCaseChar(r rune) bool {
	return strings.ContainsRune(lowerCaseChars, r)
}

// countUnits counts the runes of reading that are not rejected by any of the
// skip predicates.
func countUnits(reading string, skip ...func(rune) bool) int {
	n := 0
outer:
	for _, r := range reading {
		for _, s := range skip {
			if s(r) {
				continue outer
			}
		}
		n++
	}
	return n
}

// voicelessAdjustment would remove devoiced vowels (the "ス" in "デス") from a
// syllable count. Not implemented; it always returns 0.
func voicelessAdjustment(string) int {
	return 0
}

// smoothingAdjustment would merge vowel sequences sung as one syllable
// ("アイ" in some styles). Not implemented; it always returns 0.
func smoothingAdjustment(string) int {
	return 0
}
