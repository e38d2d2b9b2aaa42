package blocksource_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pps83/zinc/blocksource"
	"github.com/pps83/zinc/wtest"
)

func Test_Buffer(t *testing.T) {
	src := blocksource.NewBuffer([]byte("0123456789"))
	assert.EqualValues(t, 10, src.Size())

	buf, err := blocksource.ReadFull(src, 2, 4)
	wtest.Must(t, err)
	assert.Equal(t, []byte("2345"), buf)
}

func Test_ReadFullTruncatesAtTail(t *testing.T) {
	src := blocksource.NewBuffer([]byte("0123456789"))

	buf, err := blocksource.ReadFull(src, 8, 4)
	wtest.Must(t, err)
	assert.Equal(t, []byte("89"), buf)

	buf, err = blocksource.ReadFull(src, 10, 4)
	wtest.Must(t, err)
	assert.Empty(t, buf)

	buf, err = blocksource.ReadFull(src, 99, 4)
	wtest.Must(t, err)
	assert.Empty(t, buf)
}

func Test_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	wtest.Must(t, os.WriteFile(path, []byte("hello, world"), 0o644))

	src, err := blocksource.Open(path)
	wtest.Must(t, err)
	defer src.Close()

	assert.EqualValues(t, 12, src.Size())
	buf, err := blocksource.ReadFull(src, 7, 5)
	wtest.Must(t, err)
	assert.Equal(t, []byte("world"), buf)
}
