package rollsum_test

import (
	"io"
	"math/rand"
	"testing"

	"github.com/itchio/randsource"
	"github.com/stretchr/testify/assert"

	"github.com/pps83/zinc/rollsum"
	"github.com/pps83/zinc/wtest"
)

func Test_RotateEqualsUpdate(t *testing.T) {
	const blockSize = 16
	data := make([]byte, 4096)
	prng := randsource.Reader{
		Source: rand.New(rand.NewSource(0xfaadbabe)),
	}
	_, err := io.ReadFull(prng, data)
	wtest.Must(t, err)

	var rolling rollsum.Checksum
	rolling.Update(data[:blockSize])

	for p := 1; p+blockSize <= len(data); p++ {
		rolling.Rotate(data[p-1], data[p+blockSize-1])

		var fresh rollsum.Checksum
		fresh.Update(data[p : p+blockSize])
		assert.Equal(t, fresh.Digest(), rolling.Digest(), "window at %d", p)
	}
}

func Test_RotateEqualsUpdateUniformData(t *testing.T) {
	const blockSize = 8
	data := make([]byte, 256)
	for i := range data {
		data[i] = 'A'
	}

	var rolling rollsum.Checksum
	rolling.Update(data[:blockSize])
	want := rolling.Digest()

	for p := 1; p+blockSize <= len(data); p++ {
		rolling.Rotate(data[p-1], data[p+blockSize-1])
		assert.Equal(t, want, rolling.Digest(), "uniform data must keep a uniform digest")
	}
}

func Test_ClearAndEmpty(t *testing.T) {
	var c rollsum.Checksum
	assert.True(t, c.IsEmpty())

	c.Update([]byte("hello"))
	assert.False(t, c.IsEmpty())
	assert.Equal(t, 5, c.WindowSize())
	assert.NotZero(t, c.Digest())

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Zero(t, c.WindowSize())
}

func Test_ShortWindow(t *testing.T) {
	// The final window of a file may be shorter than the block size;
	// it is seeded with Update and must digest the same as any other
	// window of those bytes.
	var short rollsum.Checksum
	short.Update([]byte("xy"))
	assert.Equal(t, rollsum.Sum([]byte("xy")), short.Digest())

	var full rollsum.Checksum
	full.Update([]byte("xyz"))
	assert.NotEqual(t, short.Digest(), full.Digest())
}

func Test_DigestDependsOnOrder(t *testing.T) {
	assert.NotEqual(t, rollsum.Sum([]byte("abcd")), rollsum.Sum([]byte("dcba")))
}
