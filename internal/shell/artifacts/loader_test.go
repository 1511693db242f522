package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/chainhost/internal/core/artifact"
	"github.com/artpar/chainhost/internal/testutil/contracts"
)

func TestLoadDir_Truffle(t *testing.T) {
	dir := contracts.WriteDir(t)

	set, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"ContractStorage", "SongsLib", "TuneTrader", "TuneTraderExchange"}, set.Names())

	tt, err := set.Get("TuneTrader")
	require.NoError(t, err)
	_, err = tt.Code()
	assert.ErrorIs(t, err, artifact.ErrUnlinkedBytecode)
	assert.Contains(t, tt.ABI.Methods, "setFee")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrArtifactsDirAccess)
}

func TestLoadDir_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	_, err := LoadDir(file)
	assert.ErrorIs(t, err, ErrArtifactsDirAccess)
}

func TestLoadFS_NestedLayout(t *testing.T) {
	data := contracts.JSON()
	fsys := fstest.MapFS{
		"contracts/Storage.sol/ContractStorage.json":     {Data: data["ContractStorage"]},
		"contracts/Storage.sol/ContractStorage.dbg.json": {Data: []byte(`{"buildInfo":"x"}`)},
		"build-info/abc123.json":                         {Data: []byte(`{"id":"abc123"}`)},
		"README.md":                                      {Data: []byte("# build output")},
	}

	set, err := LoadFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"ContractStorage"}, set.Names())
}

func TestLoadFS_Empty(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{"README.md": {Data: []byte("nothing")}})
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestLoadFS_Duplicate(t *testing.T) {
	data := contracts.JSON()
	fsys := fstest.MapFS{
		"a/ContractStorage.json": {Data: data["ContractStorage"]},
		"b/ContractStorage.json": {Data: data["ContractStorage"]},
	}

	_, err := LoadFS(fsys)
	assert.ErrorIs(t, err, ErrDuplicateArtifact)
}

func TestLoadFS_InvalidArtifact(t *testing.T) {
	fsys := fstest.MapFS{"Broken.json": {Data: []byte(`{"abi": []}`)}}

	_, err := LoadFS(fsys)
	assert.ErrorIs(t, err, artifact.ErrNoBytecode)
	assert.Contains(t, err.Error(), "Broken.json")
}
