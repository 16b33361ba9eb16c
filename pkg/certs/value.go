package certs

import (
	"encoding/asn1"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/brickingsoft/errors"
)

// ASN.1 string tags the converter understands.
const (
	tagUTF8String      = 12
	tagNumericString   = 18
	tagPrintableString = 19
	tagT61String       = 20
	tagIA5String       = 22
	tagGeneralString   = 27
	tagBMPString       = 30
)

// stringValue converts one attribute value to UTF-8 and validates it
// strictly. Legacy encodings are transcoded first; bytes that do not form
// valid UTF-8 after transcoding fail the decode.
func stringValue(raw asn1.RawValue) (string, error) {
	if raw.Class != asn1.ClassUniversal {
		return "", errors.From(ErrDecode, errors.WithMeta("cause", "non-universal attribute value"))
	}
	var s string
	switch raw.Tag {
	case tagT61String:
		// T.61 is treated as Latin-1, transcoded rune by rune.
		runes := make([]rune, 0, len(raw.Bytes))
		for _, b := range raw.Bytes {
			runes = append(runes, rune(b))
		}
		s = string(runes)
	case tagBMPString:
		if len(raw.Bytes)%2 != 0 {
			return "", errors.From(ErrDecode, errors.WithMeta("cause", "odd length BMP string"))
		}
		u := make([]uint16, 0, len(raw.Bytes)/2)
		for i := 0; i < len(raw.Bytes); i += 2 {
			u = append(u, uint16(raw.Bytes[i])<<8|uint16(raw.Bytes[i+1]))
		}
		s = string(utf16.Decode(u))
	case tagUTF8String, tagNumericString, tagPrintableString, tagIA5String, tagGeneralString:
		s = string(raw.Bytes)
	default:
		return "", errors.From(ErrDecode,
			errors.WithMeta("cause", fmt.Sprintf("unsupported attribute string tag %d", raw.Tag)))
	}
	if !utf8.ValidString(s) {
		return "", errors.From(ErrDecode, errors.WithMeta("cause", "attribute value is not valid UTF-8"))
	}
	return s, nil
}
