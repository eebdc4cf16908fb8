// Package charset decodes RDS characters to Unicode.
//
// RDS programme-related text (PS, RT, PTYN, Long PS) is carried as 8-bit
// bytes in the "G0" code table defined by IEC 62106, which matches
// printable ASCII in the 0x20-0x7F range but diverges in the top half,
// where IEC 62106 defines its own "G2" Latin-supplement block rather than
// following any single existing 8-bit code page.  Bytes below 0x20 are
// control codes; 0x0D in particular terminates a RadioText message.
//
// Grounded on the teacher's constant-lookup-table style
// (rtcm/utils/utils.go's GetTitleAndComment), generalized here to a
// 64-entry rune table indexed by byte-0x80.
package charset

// g2Table maps bytes 0x80..0xBF (IEC 62106 Annex E, G2 "Latin supplement")
// to the Unicode rune they represent.  Index 0 is byte 0x80.
var g2Table = [64]rune{
	'á', 'à', 'é', 'è', 'í', 'ì', 'ó', 'ò', // 0x80-0x87
	'ú', 'ù', 'Ñ', 'Ç', 'Ş', 'β', '¡', 'Ĳ', // 0x88-0x8F
	'â', 'ä', 'ê', 'ë', 'î', 'ï', 'ô', 'ö', // 0x90-0x97
	'û', 'ü', 'ñ', 'ç', 'ş', 'ğ', 'ı', 'ĳ', // 0x98-0x9F
	'ª', 'α', '©', '‰', 'Ǧ', 'ě', 'ň', 'ő', // 0xA0-0xA7
	'π', '€', '£', '$', '←', '↑', '→', '↓', // 0xA8-0xAF
	'º', '¹', '²', '³', '±', 'İ', 'ń', 'ű', // 0xB0-0xB7
	'µ', '¿', '÷', '°', '¼', '½', '¾', '§', // 0xB8-0xBF
}

// RTTerminator is the control byte that ends a RadioText message early.
const RTTerminator byte = 0x0D

// Decode maps a single RDS byte to the Unicode rune it represents.
func Decode(b byte) rune {
	switch {
	case b < 0x20:
		// Control character - pass through (notably 0x0D, the RT terminator).
		return rune(b)
	case b >= 0x80 && b <= 0xBF:
		return g2Table[b-0x80]
	default:
		// 0x20-0x7F is plain ASCII; 0xC0-0xFF is identical under
		// Windows-1252 and Latin-1 (only 0x80-0x9F diverge, and that
		// range is already claimed by the G2 table above).
		return rune(b)
	}
}

// DecodePSChar is like Decode but collapses a null byte to a space, the
// convention used in the PS-family buffers (PS, PTYN, Long PS).
func DecodePSChar(b byte) rune {
	if b == 0 {
		return ' '
	}
	return Decode(b)
}
