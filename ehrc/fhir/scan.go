package fhir

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dimchansky/utfbom"
	"golang.org/x/text/encoding/charmap"
	textunicode "golang.org/x/text/encoding/unicode"

	"github.com/carenexus/ehrc-app/ehrc/constants"
)

// Wristband and label printers vary across institutions, so a scanned
// identifier may arrive bare, labeled ("MRN: 12345678"), or packed into a
// caret-delimited multi-field string. An unrecognized shape is passed
// through unmodified rather than rejected: the caller decides whether the
// value is usable, and blocking the lookup outright helps nobody.

var labeledMRN = regexp.MustCompile(`(?i)^mrn\s*:\s*(.+?)$`)

// DecodeScan normalizes a scanned identifier to a bare value.
func DecodeScan(input string) string {
	value, _ := DecodeScanFormat(input)
	return value
}

// DecodeScanFormat normalizes a scanned identifier and reports which shape
// was recognized.
func DecodeScanFormat(input string) (string, constants.ScanFormat) {
	trimmed := strings.TrimSpace(input)

	if trimmed != "" && isDigits(trimmed) {
		return trimmed, constants.ScanFormatPlain
	}

	if m := labeledMRN.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), constants.ScanFormatLabeled
	}

	if strings.Contains(trimmed, "^") {
		if value, ok := decodeDelimited(trimmed); ok {
			return value, constants.ScanFormatDelimited
		}
	}

	return input, constants.ScanFormatUnknown
}

// decodeDelimited picks the value immediately following an MRN field marker
// out of a caret-delimited encoding, e.g. ^MRN^12345678^NAME^SMITH^.
func decodeDelimited(input string) (string, bool) {
	fields := strings.Split(input, "^")
	for i, field := range fields {
		if !strings.EqualFold(strings.TrimSpace(field), "MRN") {
			continue
		}
		for _, next := range fields[i+1:] {
			next = strings.TrimSpace(next)
			if next != "" {
				return next, true
			}
		}
	}
	return "", false
}

// DecodeScanBytes cleans raw scanner output and decodes the result.
func DecodeScanBytes(raw []byte) (string, error) {
	cleaned, err := CleanScanBytes(raw)
	if err != nil {
		return "", err
	}
	return DecodeScan(cleaned), nil
}

// CleanScanBytes prepares raw scanner output for shape detection: byte order
// marks are stripped, UTF-16 input is transcoded, anything that is not valid
// UTF-8 falls back to a Latin-1 read, and framing control characters are
// trimmed.
func CleanScanBytes(raw []byte) (string, error) {
	reader, enc := utfbom.Skip(bytes.NewReader(raw))
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	switch enc {
	case utfbom.UTF16BigEndian:
		data, err = textunicode.UTF16(textunicode.BigEndian, textunicode.IgnoreBOM).NewDecoder().Bytes(data)
	case utfbom.UTF16LittleEndian:
		data, err = textunicode.UTF16(textunicode.LittleEndian, textunicode.IgnoreBOM).NewDecoder().Bytes(data)
	default:
		if !utf8.Valid(data) {
			data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		}
	}
	if err != nil {
		return "", err
	}

	return strings.TrimFunc(string(data), func(r rune) bool {
		return unicode.IsControl(r) || unicode.IsSpace(r)
	}), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
