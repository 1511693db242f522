// Package contracts provides compiled artifacts for tests.
//
// Every unit shares InitCode, which deploys a one-byte STOP runtime, so the
// contracts accept any call. Constructor arguments and link addresses are
// appended after the init code and never executed.
package contracts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/chainhost/internal/core/artifact"
	"github.com/artpar/chainhost/internal/core/deployment"
)

// InitCode copies byte 12 (0x00, STOP) into memory and returns it as runtime code.
const InitCode = "6001600c60003960016000f300"

const (
	storageABI = `[
		{"type":"constructor","inputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"authorizeAddress","inputs":[{"name":"_address","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"isAuthorized","inputs":[{"name":"_address","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
	]`

	appABI = `[
		{"type":"constructor","inputs":[{"name":"_storage","type":"address"}],"stateMutability":"nonpayable"},
		{"type":"function","name":"setFee","inputs":[{"name":"_fee","type":"uint256"},{"name":"_enabled","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"}
	]`

	libraryABI = `[]`
)

// JSON returns Truffle-style artifacts for the default layout, keyed by unit.
// TuneTrader references SongsLib through a legacy placeholder.
func JSON() map[string][]byte {
	songsLib := deployment.DefaultLayout().Library
	return map[string][]byte{
		"SongsLib":           truffle("SongsLib", libraryABI, InitCode),
		"ContractStorage":    truffle("ContractStorage", storageABI, InitCode),
		"TuneTrader":         truffle("TuneTrader", appABI, InitCode+"73"+artifact.LegacyPlaceholder(songsLib)),
		"TuneTraderExchange": truffle("TuneTraderExchange", appABI, InitCode),
	}
}

// Set parses JSON into an artifact set.
func Set(t testing.TB) artifact.Set {
	t.Helper()
	set := artifact.Set{}
	for name, data := range JSON() {
		a, err := artifact.Parse(name, data)
		if err != nil {
			t.Fatalf("parse fixture %s: %v", name, err)
		}
		set[name] = a
	}
	return set
}

// WriteDir writes JSON as <dir>/<Unit>.json and returns dir.
func WriteDir(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range JSON() {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
	return dir
}

func truffle(name, abiJSON, bytecode string) []byte {
	return []byte(`{"contractName":"` + name + `","abi":` + abiJSON + `,"bytecode":"0x` + bytecode + `"}`)
}
