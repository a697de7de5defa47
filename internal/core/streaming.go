package core

// streaming.go provides the byte-level readers used by the ingestor.
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) written by Excel
//   - decoders: the prioritized encoding list tried for delimited files
//
// UTF-16 files are recognized only by their BOM; everything else goes through
// the fallback chain utf-8 -> gbk -> gb18030 -> latin-1.

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// errUndecodable marks a byte sequence that is not valid in an encoding.
var errUndecodable = errors.New("invalid byte sequence")

// textDecoder turns raw file bytes into UTF-8 text.
type textDecoder struct {
	Name   string
	Decode func([]byte) ([]byte, error)
}

// DefaultEncodings is the fallback order for delimited files.
var DefaultEncodings = []string{"utf-8", "gbk", "gb18030", "latin-1"}

// decoderFor returns the decoder for an encoding name.
func decoderFor(name string) (textDecoder, bool) {
	switch name {
	case "utf-8", "utf8":
		return textDecoder{Name: "utf-8", Decode: decodeUTF8}, true
	case "gbk", "gb2312":
		return textDecoder{Name: name, Decode: strictDecode(simplifiedchinese.GBK)}, true
	case "gb18030":
		return textDecoder{Name: name, Decode: strictDecode(simplifiedchinese.GB18030)}, true
	case "latin-1", "latin1", "iso-8859-1":
		return textDecoder{Name: "latin-1", Decode: plainDecode(charmap.ISO8859_1)}, true
	default:
		return textDecoder{}, false
	}
}

// decodeUTF8 accepts only valid UTF-8 and strips a leading BOM.
func decodeUTF8(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, errUndecodable
	}
	return io.ReadAll(NewBOMSkippingReader(bytes.NewReader(data)))
}

// strictDecode fails when the decoder had to substitute replacement runes,
// which x/text decoders do instead of returning an error.
func strictDecode(enc encoding.Encoding) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return nil, err
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			return nil, errUndecodable
		}
		return out, nil
	}
}

func plainDecode(enc encoding.Encoding) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return enc.NewDecoder().Bytes(data)
	}
}

// utf16Decoder returns a decoder when data starts with a UTF-16 BOM.
func utf16Decoder(data []byte) (textDecoder, bool) {
	if len(data) < 2 {
		return textDecoder{}, false
	}
	var enc encoding.Encoding
	switch {
	case data[0] == 0xFF && data[1] == 0xFE:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case data[0] == 0xFE && data[1] == 0xFF:
		enc = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	default:
		return textDecoder{}, false
	}
	return textDecoder{Name: "utf-16", Decode: strictDecode(enc)}, true
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// The UTF-8 BOM is 0xEF 0xBB 0xBF and is commonly added by Windows programs.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	bufData    []byte // Bytes read during BOM detection that were not a BOM
	bufOffset  int
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{
		reader: r,
	}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if n == 0 {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return 0, err
		}

		if n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			r.bufData = nil
		} else {
			r.bufData = r.buf[:n]
			r.bufOffset = 0
		}

		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if err == io.EOF && len(r.bufData) == 0 {
			return 0, io.EOF
		}
	}

	if r.bufData != nil && r.bufOffset < len(r.bufData) {
		copied := copy(p, r.bufData[r.bufOffset:])
		r.bufOffset += copied
		if r.bufOffset >= len(r.bufData) {
			r.bufData = nil
		}
		return copied, nil
	}

	return r.reader.Read(p)
}
