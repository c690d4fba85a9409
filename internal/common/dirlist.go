package common

import (
	"bytes"
	"time"
)

// A directory page is a sequence of records:
//
//	offset 0: mtime (4 bytes), 4: size (4 bytes), 8: type (1 byte), 9: name, NUL
//
// Each record starts on a 4 byte boundary. TypeSkip records are not reported,
// TypeEnd terminates the whole listing.

// DecodeDirPage decodes the records of one GET_DIR reply. end is true when the
// page carries the end of listing marker, in which case no further page must
// be requested.
func DecodeDirPage(page []byte) (entries []Stat, end bool) {
	end = scanDirPage(page, func(record []byte, name string) {
		stat := decodeStatFields(record)
		stat.Name = name
		entries = append(entries, stat)
	})
	return entries, end
}

// DecodeDirNames is DecodeDirPage without decoding the fixed record fields.
func DecodeDirNames(page []byte) (names []string, end bool) {
	end = scanDirPage(page, func(_ []byte, name string) {
		names = append(names, name)
	})
	return names, end
}

func scanDirPage(page []byte, emit func(record []byte, name string)) bool {
	i := 0
	for i < len(page)-statSize {
		typ := FileType(page[i+8])
		if typ == TypeEnd {
			return true
		}

		nameStart := i + statSize
		n := bytes.IndexByte(page[nameStart:], 0)
		if n < 0 {
			// Name runs past the end of the page.
			return false
		}

		if typ != TypeSkip {
			emit(page[i:nameStart], string(page[nameStart:nameStart+n]))
		}

		i = nameStart + n + 1
		for i&0x3 != 0 {
			i++
		}
	}
	return false
}

// AppendDirRecord appends one directory record to page, padded to the next 4
// byte boundary.
func AppendDirRecord(page []byte, stat Stat) []byte {
	page = appendStatFields(page, stat)
	page = append(page, stat.Name...)
	page = append(page, 0)
	for len(page)&0x3 != 0 {
		page = append(page, 0)
	}
	return page
}

// AppendDirEnd appends the end of listing marker to page.
func AppendDirEnd(page []byte) []byte {
	return AppendDirRecord(page, Stat{Type: TypeEnd, LastModified: time.Unix(0, 0)})
}
