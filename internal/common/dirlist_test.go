package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDirPageSkipAndEnd(t *testing.T) {
	var page []byte
	page = AppendDirRecord(page, Stat{Name: "readme.txt", Length: 256, LastModified: time.Unix(1, 0), Type: TypeFile})
	page = AppendDirRecord(page, Stat{Name: "hidden", LastModified: time.Unix(0, 0), Type: TypeSkip})
	page = AppendDirEnd(page)

	entries, end := DecodeDirPage(page)
	assert.True(t, end)
	require.Len(t, entries, 1)
	assert.Equal(t, "readme.txt", entries[0].Name)
	assert.Equal(t, uint32(256), entries[0].Length)
	assert.Equal(t, int64(1000), entries[0].LastModified.UnixMilli())
	assert.Equal(t, TypeFile, entries[0].Type)

	names, end := DecodeDirNames(page)
	assert.True(t, end)
	assert.Equal(t, []string{"readme.txt"}, names)
}

func TestDecodeDirPageAlignment(t *testing.T) {
	var page []byte
	// 9 + 3 + 1 = 13 bytes, next record at 16.
	page = AppendDirRecord(page, Stat{Name: "abc", LastModified: time.Unix(0, 0), Type: TypeFile})
	require.Len(t, page, 16)
	// 9 + 2 + 1 = 12 bytes, no padding.
	page = AppendDirRecord(page, Stat{Name: "de", LastModified: time.Unix(0, 0), Type: TypeDir})
	require.Len(t, page, 28)

	names, end := DecodeDirNames(page)
	assert.False(t, end)
	assert.Equal(t, []string{"abc", "de"}, names)
}

func TestDecodeDirPageWithoutEnd(t *testing.T) {
	entries, end := DecodeDirPage(nil)
	assert.False(t, end)
	assert.Empty(t, entries)

	// Unterminated name at the end of the page is ignored.
	page := AppendDirRecord(nil, Stat{Name: "ok", LastModified: time.Unix(0, 0), Type: TypeFile})
	page = append(page, 0, 0, 0, 0, 0, 0, 0, 0, byte(TypeFile), 'b', 'r', 'o')
	entries, end = DecodeDirPage(page)
	assert.False(t, end)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].Name)
}
