package display

import (
	"strings"
	"unicode"
)

// transitTerms maps common English place words to their Hindi rendering.
var transitTerms = map[string]string{
	"station":    "स्टेशन",
	"bus":        "बस",
	"terminal":   "टर्मिनल",
	"airport":    "एयरपोर्ट",
	"hospital":   "अस्पताल",
	"college":    "कॉलेज",
	"university": "विश्वविद्यालय",
	"market":     "बाज़ार",
	"mall":       "मॉल",
	"road":       "रोड",
	"temple":     "मंदिर",
	"stand":      "स्टैंड",
	"chowk":      "चौक",
	"gate":       "गेट",
	"park":       "पार्क",
	"bridge":     "पुल",
	"school":     "स्कूल",
	"church":     "चर्च",
	"mosque":     "मस्जिद",
	"railway":    "रेलवे",
	"stop":       "स्टॉप",
	"nagar":      "नगर",
	"hotel":      "होटल",
	"bank":       "बैंक",
	"office":     "ऑफिस",
	"police":     "पुलिस",
	"post":       "पोस्ट",
	"isbt":       "आईएसबीटी",
	"start":      "प्रारंभ",
	"end":        "अंत",
	"clock":      "क्लॉक",
	"tower":      "टावर",
}

var consonants = map[string]string{
	"chh": "छ", "kh": "ख", "gh": "घ", "ch": "च", "jh": "झ", "th": "थ", "dh": "ध",
	"ph": "फ", "bh": "भ", "sh": "श",
	"k": "क", "g": "ग", "c": "क", "j": "ज", "t": "ट", "d": "ड", "n": "न",
	"p": "प", "b": "ब", "m": "म", "y": "य", "r": "र", "l": "ल", "v": "व",
	"w": "व", "s": "स", "h": "ह", "f": "फ", "z": "ज़", "q": "क", "x": "क्स",
}

var vowels = map[string]string{
	"aa": "आ", "ee": "ई", "oo": "ऊ", "ai": "ऐ", "au": "औ",
	"a": "अ", "i": "इ", "u": "उ", "e": "ए", "o": "ओ",
}

var matras = map[string]string{
	"aa": "ा", "ee": "ी", "oo": "ू", "ai": "ै", "au": "ौ",
	"a": "", "i": "ि", "u": "ु", "e": "े", "o": "ो",
}

// Transliterate renders a Latin landmark name in Devanagari: known transit
// words come from a dictionary, everything else from a rough letter map.
func Transliterate(s string) string {
	var (
		out  strings.Builder
		word strings.Builder
	)
	flush := func() {
		if word.Len() == 0 {
			return
		}
		out.WriteString(transliterateWord(word.String()))
		word.Reset()
	}
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			word.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
		out.WriteRune(r)
	}
	flush()
	return out.String()
}

func transliterateWord(w string) string {
	if hi, ok := transitTerms[w]; ok {
		return hi
	}
	var (
		out       strings.Builder
		afterCons bool
	)
	for i := 0; i < len(w); {
		if tok, n := longest(w[i:], consonants); n > 0 {
			out.WriteString(tok)
			afterCons = true
			i += n
			continue
		}
		if tok, n := longest(w[i:], vowels); n > 0 {
			if afterCons {
				out.WriteString(matras[w[i:i+n]])
			} else {
				out.WriteString(tok)
			}
			afterCons = false
			i += n
			continue
		}
		out.WriteByte(w[i])
		afterCons = false
		i++
	}
	return out.String()
}

func longest(s string, table map[string]string) (string, int) {
	for n := 3; n > 0; n-- {
		if len(s) < n {
			continue
		}
		if tok, ok := table[s[:n]]; ok {
			return tok, n
		}
	}
	return "", 0
}
