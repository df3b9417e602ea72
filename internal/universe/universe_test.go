package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltin(t *testing.T) {
	u, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "000300", u.Benchmark.Code)
	assert.Len(t, u.Instruments, 25)
	assert.Equal(t, "600848", u.Backtest.Code)

	codes := u.Codes()
	assert.Len(t, codes, 26)
	assert.Equal(t, "000300", codes[len(codes)-1])
	assert.Equal(t, "stock", u.Instruments[0].Kind)
	assert.Equal(t, "hk", u.Instruments[24].Kind)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("instruments:\n  - {code: \"600519\"}\n"))
	assert.Error(t, err, "missing benchmark")

	_, err = Parse([]byte("benchmark: {code: \"000300\"}\ninstruments: []\n"))
	assert.Error(t, err, "no instruments")

	_, err = Parse([]byte("benchmark: {code: \"000300\"}\ninstruments:\n  - {code: \"1\"}\n  - {code: \"1\"}\n"))
	assert.Error(t, err, "duplicate")

	_, err = Parse([]byte("benchmark: ["))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.yaml")
	require.NoError(t, os.WriteFile(path, []byte("benchmark: {code: \"000905.SH\", name: CSI500}\ninstruments:\n  - {code: \"600519\", name: A}\n"), 0o600))

	u, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"600519", "000905.SH"}, u.Codes())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
