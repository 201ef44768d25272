package store

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	off, err := s.Append([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)

	off, err = s.Append([]byte(" world"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)
	assert.Equal(t, int64(11), s.Size())

	buf := make([]byte, 5)
	_, err = s.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	require.NoError(t, Write5(s, 11, 0x0102030405))
	v, err := Read5(s, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(0x0102030405), v)

	require.NoError(t, Write4(s, 0, 7))
	c, err := Read4(s, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), c)

	_, err = s.ReadAt(make([]byte, 4), s.Size()-2)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Truncate(4))
	assert.Equal(t, int64(4), s.Size())
	require.NoError(t, s.Flush())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.lst")
	s, err := CreateFile(path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, int64(4), reopened.Size())
}

func TestFileStoreLargeAppend(t *testing.T) {
	s, err := CreateFile(filepath.Join(t.TempDir(), "big.lst"))
	require.NoError(t, err)
	defer s.Close()

	chunk := make([]byte, 1000)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for i := 0; i < 200; i++ {
		_, err := s.Append(chunk)
		require.NoError(t, err)
	}
	got := make([]byte, 3)
	_, err = s.ReadAt(got, 199*1000+1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestMappedStoreIsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.ref")
	s, err := CreateFile(path)
	require.NoError(t, err)
	_, err = s.Append([]byte{0, 0, 0, 1, 0, 0, 0, 0, 9})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	m, err := OpenMapped(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, int64(9), m.Size())
	n, err := Read4(m, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)
	off, err := Read5(m, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(9), off)

	_, err = m.Append([]byte{1})
	assert.ErrorIs(t, err, apperr.ErrReadOnly)
	assert.ErrorIs(t, Write4(m, 0, 2), apperr.ErrReadOnly)
}

func TestSequentialReader(t *testing.T) {
	s := NewMemory()
	_, _ = s.Append([]byte("abcdef"))
	r := NewReader(s, 2, 16)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(b))
}
