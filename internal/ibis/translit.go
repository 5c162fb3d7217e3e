package ibis

import "unicode/utf8"

/*
Transliteration table, grounded on original_source/ibis/ibis_protocol.py
prepare_text / ibis_server.py _reverse_prepare_text: the seven German
letters outside 7-bit ASCII get a single-byte IBIS-charset stand-in.
*/

var translitForward = map[rune]byte{
	'ä': '{',
	'ö': '|',
	'ü': '}',
	'ß': '~',
	'Ä': '[',
	'Ö': '\\',
	'Ü': ']',
}

var translitReverse = map[byte]rune{
	'{':  'ä',
	'|':  'ö',
	'}':  'ü',
	'~':  'ß',
	'[':  'Ä',
	'\\': 'Ö',
	']':  'Ü',
}

// FilterASCII keeps only bytes <= 0x7F (7-bit ASCII) or one of the seven
// umlauts, dropping everything else. It is applied to Text.Text and
// Time.Format at storage time, recursively into a Sequence's Messages.
func FilterASCII(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r <= 0x7F {
			out = append(out, r)
			continue
		}
		if _, ok := translitForward[r]; ok {
			out = append(out, r)
		}
	}
	return string(out)
}

// FilterContent applies FilterASCII to every text-bearing field of c,
// recursing into a Sequence's inner messages.
func FilterContent(c *DisplayContent) {
	switch c.Type {
	case ContentText:
		c.Text = FilterASCII(c.Text)
	case ContentTime:
		c.Format = FilterASCII(c.Format)
	case ContentSequence:
		for i := range c.Messages {
			FilterContent(&c.Messages[i])
		}
	}
}

// Transliterate maps the seven German letters to their single-byte IBIS
// stand-ins and returns the remaining ASCII Basic Latin range as raw
// bytes. Input is assumed already filtered to ASCII+umlauts; anything
// else is dropped defensively rather than emitted unchecked.
func Transliterate(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := translitForward[r]; ok {
			out = append(out, b)
			continue
		}
		if r <= 0x7F {
			out = append(out, byte(r))
		}
	}
	return out
}

// TransliterateBytes is the defensive byte-input variant described in the
// transliterator's spec: if data isn't valid UTF-8, try decoding it as
// UTF-8 anyway (the double try in prepare_text's except block); if that
// still doesn't work, leave the bytes untouched.
func TransliterateBytes(data []byte) []byte {
	if utf8.Valid(data) {
		return Transliterate(string(data))
	}
	repaired := make([]rune, 0, len(data))
	ok := true
	for rest := data; len(rest) > 0; {
		r, size := utf8.DecodeRune(rest)
		if r == utf8.RuneError && size <= 1 {
			ok = false
			break
		}
		repaired = append(repaired, r)
		rest = rest[size:]
	}
	if !ok {
		return data
	}
	return Transliterate(string(repaired))
}

// ReverseTransliterate maps the IBIS-charset stand-in bytes back to their
// German letters, producing the canonical Unicode form used to store
// CurrentText.
func ReverseTransliterate(data []byte) string {
	out := make([]rune, 0, len(data))
	for _, b := range data {
		if r, ok := translitReverse[b]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, rune(b))
	}
	return string(out)
}
