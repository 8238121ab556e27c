package digest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/cidutil"
	"xdao.co/memoproof/fault"
)

func TestSum_Deterministic(t *testing.T) {
	b := []byte("hello, ledger")
	require.Equal(t, Sum(b), Sum(b))
	require.True(t, Sum(b).Valid())
}

func TestSum_EmptyBlob(t *testing.T) {
	require.Equal(t, Digest("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"), Sum(nil))
	require.Equal(t, Sum(nil), Sum([]byte{}))
}

func TestSum_NoCollisionsInCorpus(t *testing.T) {
	seen := map[Digest]string{}
	corpus := []string{"", "a", "b", "ab", "ba", "a\n", "a ", strings.Repeat("x", 4096)}
	for i := 0; i < 256; i++ {
		corpus = append(corpus, fmt.Sprintf("blob-%d", i), string([]byte{byte(i)}))
	}
	for _, c := range corpus {
		d := Sum([]byte(c))
		if prev, ok := seen[d]; ok && prev != c {
			t.Fatalf("collision between %q and %q", prev, c)
		}
		seen[d] = c
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestFromReader_ReadFailureIsDigestError(t *testing.T) {
	_, err := FromReader(failingReader{})
	require.Error(t, err)
	require.True(t, fault.IsKind(err, fault.KindDigest))
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("contract v1"), 0o600))

	d, err := File(path)
	require.NoError(t, err)
	require.Equal(t, Sum([]byte("contract v1")), d)

	_, err = File(filepath.Join(t.TempDir(), "missing"))
	require.True(t, fault.IsKind(err, fault.KindDigest))
}

func TestParse(t *testing.T) {
	d := Sum([]byte("x"))
	got, err := Parse(d.String())
	require.NoError(t, err)
	require.Equal(t, d, got)

	_, err = Parse(strings.ToUpper(d.String()))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Parse(d.String()[:63])
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Parse(d.String()[:63] + "g")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestCID_IsContentCID(t *testing.T) {
	data := []byte("archived file")
	d := Sum(data)
	id, err := d.CID()
	require.NoError(t, err)
	require.Equal(t, cidutil.CIDv1RawSHA256(data), id.String())

	back, err := FromCID(id)
	require.NoError(t, err)
	require.Equal(t, d, back)

	viaAny, err := ParseAny(id.String())
	require.NoError(t, err)
	require.Equal(t, d, viaAny)

	_, err = Digest("nope").CID()
	require.ErrorIs(t, err, ErrInvalid)
}
