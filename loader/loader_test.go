package loader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/version"
)

func writeContainer(t *testing.T, magic uint16, flags uint32, tsOrHash uint64, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.pyc")
	var header [16]byte
	binary.LittleEndian.PutUint16(header[0:2], magic)
	binary.LittleEndian.PutUint32(header[4:8], flags)
	binary.LittleEndian.PutUint64(header[8:16], tsOrHash)
	require.NoError(t, os.WriteFile(path, append(header[:], body...), 0o644))
	return path
}

func TestContainerLoaderDecodesTimestampHeader(t *testing.T) {
	path := writeContainer(t, 0x0d55, 0, 1700000000, []byte("body"))
	l := &ContainerLoader{}
	res, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, version.Tag{Major: 3, Minor: 8}, res.Version)
	assert.Equal(t, time.Unix(1700000000, 0), res.Timestamp)
	assert.False(t, res.IsPyPy)
	assert.Nil(t, res.Code, "Decode left nil returns header-only Result")
}

func TestContainerLoaderDecodesHashBasedHeader(t *testing.T) {
	path := writeContainer(t, 0x0d55, 0x2, 0xdeadbeefcafebabe, []byte("body"))
	l := &ContainerLoader{}
	res, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeefcafebabe), res.SipHash)
	assert.True(t, res.Timestamp.IsZero())
}

func TestContainerLoaderSetsPyPyFlag(t *testing.T) {
	path := writeContainer(t, 0x0d55, 0x1, 1700000000, nil)
	l := &ContainerLoader{}
	res, err := l.Load(path)
	require.NoError(t, err)
	assert.True(t, res.IsPyPy)
}

func TestContainerLoaderRejectsUnknownMagic(t *testing.T) {
	path := writeContainer(t, 0xffff, 0, 0, nil)
	l := &ContainerLoader{}
	_, err := l.Load(path)
	assert.Error(t, err)
}

func TestContainerLoaderInvokesDecodeHook(t *testing.T) {
	path := writeContainer(t, 0x0d55, 0, 1700000000, []byte("payload"))
	want := &code.Object{Name: "decoded"}
	l := &ContainerLoader{
		Decode: func(body []byte, v version.Tag) (*code.Object, error) {
			assert.Equal(t, []byte("payload"), body)
			assert.Equal(t, version.Tag{Major: 3, Minor: 8}, v)
			return want, nil
		},
	}
	res, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, want, res.Code)
}

func TestSourceLoaderReturnsErrCannotCompileWithoutHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	l := &SourceLoader{Host: version.Tag{Major: 3, Minor: 8}}
	_, err := l.Load(path)
	assert.ErrorIs(t, err, ErrCannotCompile)
}

func TestSourceLoaderDelegatesToCompile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	want := &code.Object{Name: "mod"}
	l := &SourceLoader{
		Host: version.Tag{Major: 3, Minor: 8},
		Compile: func(src []byte, filename string) (*code.Object, error) {
			assert.Equal(t, "x = 1\n", string(src))
			return want, nil
		},
	}
	res, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, want, res.Code)
}

func TestLoadForTargetRoutesByExtension(t *testing.T) {
	pycPath := writeContainer(t, 0x0d55, 0, 1700000000, nil)
	res, err := LoadForTarget(pycPath, version.Tag{Major: 3, Minor: 8}, version.Tag{Major: 3, Minor: 8}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, version.Tag{Major: 3, Minor: 8}, res.Version)

	pyPath := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(pyPath, []byte("pass\n"), 0o644))
	target := version.Tag{Major: 3, Minor: 8}
	host := version.Tag{Major: 3, Minor: 12}
	_, err = LoadForTarget(pyPath, target, host, nil, nil)
	assert.ErrorIs(t, err, ErrCannotCompile, "mismatched target/host source loads are rejected before SourceLoader runs")
}
