package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/bundle"
	"github.com/ethtx/ethtx/testlog"
)

const storeABI = `[{"type":"function","name":"get","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}]`

const fakeSolc = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "solc, the solidity compiler commandline interface"
  echo "Version: 0.8.19+commit.7dd6d404.Linux.g++"
  exit 0
fi
src=$(cat)
case "$src" in
  *bad*)
    echo ":8:3: DeclarationError: Undeclared identifier." >&2
    echo "" >&2
    echo ":2:1: Warning: Source file does not specify required compiler version!" >&2
    exit 1
    ;;
esac
echo '{"contracts":{"<stdin>:Store":{"abi":` + storeABI + `,"bin":"6080"}},"version":"0.8.19"}'
`

func writeFakeSolc(t *testing.T) string {
	if runtime.GOOS == "windows" {
		t.Skip("fake solc is a shell script")
	}
	path := filepath.Join(t.TempDir(), "solc")
	require.NoError(t, os.WriteFile(path, []byte(fakeSolc), 0o755))
	return path
}

func testBundle(t *testing.T, body string) *bundle.Bundle {
	b := bundle.New()
	require.True(t, b.Add("a.sol", "pragma solidity ^0.8.0;\ncontract A {}\n"))
	require.True(t, b.Add("b.sol", "contract B {\n  "+body+"\n}\n"))
	return b
}

func TestSolcCompile(t *testing.T) {
	solc := NewSolc(writeFakeSolc(t), "", testlog.Logger(t, log.LevelDebug))
	v, err := solc.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.8.19", v.String())

	as, err := CompileBundled(context.Background(), solc, testBundle(t, "uint x;"))
	require.NoError(t, err)
	require.Equal(t, []string{"Store"}, as.Names())
	parsed, code, err := as["Store"].Parse()
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "get")
	require.Equal(t, []byte{0x60, 0x80}, code)
}

func TestSolcCompileErrorsAreRemapped(t *testing.T) {
	solc := NewSolc(writeFakeSolc(t), "", testlog.Logger(t, log.LevelDebug))
	_, err := CompileBundled(context.Background(), solc, testBundle(t, "bad"))
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, []string{
		"b.sol :2:3: DeclarationError: Undeclared identifier.",
		":2:1: Warning: Source file does not specify required compiler version!",
	}, cerr.Errors)
}

func TestSolcVersionGate(t *testing.T) {
	solc := NewSolc(writeFakeSolc(t), "^0.4.0", testlog.Logger(t, log.LevelDebug))
	_, err := solc.Compile(context.Background(), "contract A {}")
	require.ErrorContains(t, err, "solc 0.8.19 does not satisfy ^0.4.0")

	solc = NewSolc(writeFakeSolc(t), "not a constraint", testlog.Logger(t, log.LevelDebug))
	_, err = solc.Compile(context.Background(), "contract A {}")
	require.ErrorContains(t, err, "invalid solc version constraint")
}

func TestSolcMissingBinary(t *testing.T) {
	solc := NewSolc(filepath.Join(t.TempDir(), "missing-solc"), "", testlog.Logger(t, log.LevelDebug))
	_, err := solc.Compile(context.Background(), "contract A {}")
	require.Error(t, err)
	var cerr *CompileError
	require.False(t, errors.As(err, &cerr))
}

func TestParseCombinedJSON(t *testing.T) {
	// older releases encode the abi as a string
	as, err := parseCombinedJSON([]byte(`{"contracts":{"contracts/Store.sol:Store":{"abi":"[]","bin":""},"<stdin>:Other":{"abi":[],"bin":"00"}}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"Other", "Store"}, as.Names())
	require.JSONEq(t, `[]`, string(as["Store"].ABI))
	require.Equal(t, "0x", as["Store"].Bytecode)
	_, code, err := as["Store"].Parse()
	require.NoError(t, err)
	require.Empty(t, code)

	_, err = parseCombinedJSON([]byte(`not json`))
	require.ErrorContains(t, err, "failed to decode compiler output")
}

func TestSplitMessages(t *testing.T) {
	require.Empty(t, splitMessages("\n  \n"))
	require.Equal(t, []string{"one\n  ^", "two"}, splitMessages("one\n  ^\n\n\ntwo\n"))
}

func TestCompileBundledPassThrough(t *testing.T) {
	boom := errors.New("boom")
	c := CompilerFunc(func(ctx context.Context, source string) (Artifacts, error) {
		return nil, boom
	})
	_, err := CompileBundled(context.Background(), c, testBundle(t, "x"))
	require.ErrorIs(t, err, boom)

	var got string
	c = func(ctx context.Context, source string) (Artifacts, error) {
		got = source
		return Artifacts{"B": {Bytecode: "0x"}}, nil
	}
	b := testBundle(t, "x")
	as, err := CompileBundled(context.Background(), c, b)
	require.NoError(t, err)
	require.Equal(t, b.String(), got)
	require.Contains(t, as, "B")
}

func TestCompileErrorMessage(t *testing.T) {
	require.Equal(t, "compilation failed", (&CompileError{}).Error())
	require.Equal(t, "compilation failed: a.sol :1:1: x", (&CompileError{Errors: []string{"a.sol :1:1: x"}}).Error())
	require.Equal(t, "compilation failed with 2 errors:\nx\ny", (&CompileError{Errors: []string{"x", "y"}}).Error())
}

func TestArtifactsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	as := Artifacts{"Store": {ABI: []byte(storeABI), Bytecode: "0x6080"}}
	require.NoError(t, WriteArtifacts(fs, "build/contracts.json", as))

	read, err := ReadArtifacts(fs, "build/contracts.json")
	require.NoError(t, err)
	require.Equal(t, []string{"Store"}, read.Names())
	require.JSONEq(t, storeABI, string(read["Store"].ABI))
	require.Equal(t, "0x6080", read["Store"].Bytecode)

	_, err = read.Get("Missing")
	require.ErrorContains(t, err, `no artifact for contract "Missing"`)
	_, err = ReadArtifacts(fs, "build/missing.json")
	require.ErrorContains(t, err, "failed to read build/missing.json")
}

func TestArtifactByteCodeAlias(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "legacy.json", []byte(`{"Store":{"abi":`+storeABI+`,"byteCode":"6080"}}`), 0o644))
	as, err := ReadArtifacts(fs, "legacy.json")
	require.NoError(t, err)
	_, code, err := as["Store"].Parse()
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x80}, code)

	_, _, err = Artifact{Bytecode: "0x00"}.Parse()
	require.ErrorContains(t, err, "artifact has no abi")
	_, _, err = Artifact{ABI: []byte(storeABI), Bytecode: "0xzz"}.Parse()
	require.ErrorContains(t, err, "failed to decode bytecode")
}
