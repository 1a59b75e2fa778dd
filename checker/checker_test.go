package checker

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum-optimism/infra/op-golden/acceptor"
	"github.com/ethereum-optimism/infra/op-golden/options"
	"github.com/ethereum-optimism/infra/op-golden/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rogpeppe/go-internal/txtar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consoleHeader = bannerLine + "\n" + consoleBanner + "\n" + bannerLine + "\n"

// extract writes the files of a txtar archive into a fresh directory.
// Files ending in .sh are made executable.
func extract(t *testing.T, archive *txtar.Archive) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range archive.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		mode := os.FileMode(0644)
		if strings.HasSuffix(f.Name, ".sh") {
			mode = 0755
		}
		require.NoError(t, os.WriteFile(path, f.Data, mode))
	}
	return dir
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	archive, err := txtar.ParseFile(filepath.Join("testdata", name+".txtar"))
	require.NoError(t, err)
	return extract(t, archive)
}

func inline(t *testing.T, content string) string {
	t.Helper()
	return extract(t, txtar.Parse([]byte(content)))
}

func newTestChecker(dir string) (*Checker, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return New(dir, Config{
		Log: log.NewLogger(log.DiscardHandler()),
		Out: out,
	}), out
}

func TestCheck_Echo(t *testing.T) {
	dir := fixture(t, "echo")
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	assert.NoError(t, result.Error)
	assert.Equal(t, "acc_0.txt", result.Matched)
	assert.Empty(t, result.Promoted)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "echo test", types.GetTestDisplayName(result))
	assert.Contains(t, out.String(), "*********** Checking echo test ***********\n")
	assert.Contains(t, out.String(), "EXIT: 0\n")
	assert.True(t, strings.HasSuffix(out.String(), "SUCCESS: Output matched\n"))
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
	assert.NoFileExists(t, filepath.Join(dir, BadOutputFile))
}

func TestCheck_CleanupFailure(t *testing.T) {
	dir := fixture(t, "echo")
	c, out := newTestChecker(dir)
	var removed []string
	c.remove = func(path string) error {
		removed = append(removed, path)
		return &fs.PathError{Op: "remove", Path: path, Err: errors.New("device busy")}
	}

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	assert.NoError(t, result.Error)
	require.Error(t, result.CleanupError)
	assert.Contains(t, result.CleanupError.Error(), "device busy")
	assert.Equal(t, []string{filepath.Join(dir, ArtifactFile)}, removed)
	assert.Contains(t, out.String(), "ERROR: Could not delete temporary file "+ArtifactFile+" - ")
	assert.True(t, strings.HasSuffix(out.String(), "SUCCESS: Output matched\n"))
	assert.FileExists(t, filepath.Join(dir, ArtifactFile))
}

func TestCheck_CleanupMissingArtifact(t *testing.T) {
	dir := fixture(t, "echo")
	c, out := newTestChecker(dir)
	c.remove = func(path string) error {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	assert.NoError(t, result.CleanupError)
	assert.NotContains(t, out.String(), "Could not delete")
}

func TestCheck_Goodbye(t *testing.T) {
	dir := fixture(t, "goodbye")
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindMismatch))
	assert.ErrorIs(t, result.Error, acceptor.ErrNotAccepted)
	assert.Contains(t, out.String(), "ERROR: Output is not accepted\n")
	assert.NotContains(t, out.String(), "SUCCESS")

	logPath := filepath.Join(dir, BadOutputFile)
	assert.Equal(t, logPath, result.BadOutput)
	assert.Contains(t, out.String(), "LOGGED: Saved bad output to "+logPath+"\n")
	saved, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, consoleHeader+"OUT: goodbye\nEXIT: 0\n", string(saved))

	// accepted set is untouched and the artifact is gone
	members, err := acceptor.Members(filepath.Join(dir, "acc"))
	require.NoError(t, err)
	assert.Equal(t, []string{"acc_0.txt"}, members)
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
}

func TestCheck_GoodbyeReplacesBadOutput(t *testing.T) {
	dir := fixture(t, "goodbye")
	logPath := filepath.Join(dir, BadOutputFile)
	require.NoError(t, os.WriteFile(logPath, []byte("old bad output that is longer than the new one\n"), 0644))
	c, _ := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	saved, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, consoleHeader+"OUT: goodbye\nEXIT: 0\n", string(saved))
}

func TestCheck_ShowDiff(t *testing.T) {
	dir := fixture(t, "goodbye")
	out := &bytes.Buffer{}
	c := New(dir, Config{
		Log:      log.NewLogger(log.DiscardHandler()),
		Out:      out,
		ShowDiff: true,
	})

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.Contains(t, out.String(), "DIFF: acc_0.txt (-accepted +output):")
	assert.Contains(t, out.String(), "OUT: hello")
	assert.Contains(t, out.String(), "OUT: goodbye")
}

func TestCheck_Include(t *testing.T) {
	dir := fixture(t, "include")
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, out.String(), "DEL: Deleted file "+filepath.Join(dir, "out.txt")+"\n")
	assert.Contains(t, out.String(), "EXIT: 3\n")
}

func TestCheck_ConfigChain(t *testing.T) {
	dir := fixture(t, "chain")
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	sub := filepath.Join(dir, "sub")
	assert.Equal(t, sub, result.Case.Dir)
	assert.Equal(t, filepath.Join(sub, "prog.sh"), result.Case.Executable)
	assert.Equal(t, "chained", result.Case.Description)

	// the program ran in the directory of the chained file
	where, err := os.ReadFile(filepath.Join(sub, "where.txt"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(sub)
	require.NoError(t, err)
	wherePath, err := filepath.EvalSymlinks(strings.TrimSpace(string(where)))
	require.NoError(t, err)
	assert.Equal(t, resolved, wherePath)
	assert.NoFileExists(t, filepath.Join(sub, ArtifactFile))
}

func TestCheck_ConfigCycle(t *testing.T) {
	dir := inline(t, `
-- a.txt --
-cfg: b.txt
-- b.txt --
-cfg: a.txt
-run: prog.sh
-acc: acc
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "a.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindConfiguration))
	assert.Contains(t, result.Error.Error(), "configuration cycle")
	assert.Contains(t, out.String(), "ERROR: Could not load test file")
	assert.Nil(t, result.Case)
}

func TestCheck_Promote(t *testing.T) {
	dir := fixture(t, "promote")
	accDir := filepath.Join(dir, "acc")
	c, out := newTestChecker(dir)

	first := c.Check(context.Background(), "testconfig.txt")
	require.True(t, first.Passed(), out.String())
	assert.Equal(t, "acc_0.txt", first.Promoted)
	assert.Contains(t, out.String(), "ADD: Added output as "+filepath.Join(accDir, "acc_0.txt"))
	promoted, err := os.ReadFile(filepath.Join(accDir, "acc_0.txt"))
	require.NoError(t, err)
	assert.Equal(t, consoleHeader+"OUT: first\nEXIT: 0\n", string(promoted))

	// a second run matches the promoted output and leaves the set alone
	second := c.Check(context.Background(), "testconfig.txt")
	require.True(t, second.Passed())
	assert.Equal(t, "acc_0.txt", second.Matched)
	assert.Empty(t, second.Promoted)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, []string{"acc_0.txt"}, second.Accepted)

	// new output is promoted to the lowest free index
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.sh"), []byte("#!/bin/sh\necho second\n"), 0755))
	third := c.Check(context.Background(), "testconfig.txt")
	require.True(t, third.Passed())
	assert.Equal(t, "acc_1.txt", third.Promoted)
	assert.NotEqual(t, second.Digest, third.Digest)
	assert.Equal(t, []string{"acc_0.txt", "acc_1.txt"}, third.Accepted)
	again, err := os.ReadFile(filepath.Join(accDir, "acc_0.txt"))
	require.NoError(t, err)
	assert.Equal(t, promoted, again)
}

func TestCheck_Idempotent(t *testing.T) {
	dir := fixture(t, "echo")
	c, _ := newTestChecker(dir)
	accDir := filepath.Join(dir, "acc")
	members, err := acceptor.Members(accDir)
	require.NoError(t, err)
	before, err := acceptor.Digest(accDir, members)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result := c.Check(context.Background(), "testconfig.txt")
		require.True(t, result.Passed())
		assert.Equal(t, before, result.Digest)
	}
}

func TestCheck_IgnorePrompt(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: acc
-igp
-add
-- prog.sh --
#!/bin/sh
echo to the console
-- acc/README --
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	assert.Contains(t, out.String(), "OUT: to the console\n")
	promoted, err := os.ReadFile(filepath.Join(dir, "acc", result.Promoted))
	require.NoError(t, err)
	assert.Equal(t, "EXIT: 0\n", string(promoted))
}

func TestCheck_MissingRequiredOption(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-acc: acc
-del: keep.txt
-- keep.txt --
keep
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindConfiguration))
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, out.String(), "ERROR: -run option not provided\n")
	assert.Contains(t, out.String(), "USAGE: check")
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
}

func TestCheck_WrongArgumentCount(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: one two
-add: yes
-del: keep.txt
-- prog.sh --
#!/bin/sh
touch spawned.txt
-- keep.txt --
keep
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.Contains(t, out.String(), "ERROR: -acc option has wrong number of arguments\n")
	assert.Contains(t, out.String(), "ERROR: -add option has wrong number of arguments\n")
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "spawned.txt"))
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
}

func TestCheck_UnknownOption(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: acc
-bogus: 1
-also
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.Contains(t, out.String(), "ERROR: -bogus is not a legal option\nERROR: -also is not a legal option\n")
}

func TestCheck_MissingExecutable(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: missing.sh
-acc: acc
-- acc/acc_0.txt --
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindFilesystem))
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, out.String(), "ERROR: Failed to run command")
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
	assert.NoFileExists(t, filepath.Join(dir, BadOutputFile))
}

func TestCheck_MissingAcceptedDir(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: nowhere
-add
-- prog.sh --
#!/bin/sh
echo hi
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindFilesystem))
	assert.ErrorIs(t, result.Error, acceptor.ErrNoAcceptedDir)
	assert.Contains(t, out.String(), "ERROR: Acceptor directory")
	assert.NoDirExists(t, filepath.Join(dir, "nowhere"))
	assert.FileExists(t, filepath.Join(dir, BadOutputFile))
}

func TestCheck_MissingInclude(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: acc
-inc: absent.txt
-- prog.sh --
#!/bin/sh
exit 0
-- acc/acc_0.txt --
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindFilesystem))
	assert.Contains(t, out.String(), "ERROR: Could not include absent.txt")
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
}

func TestCheck_DeleteReadOnly(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: acc
-add
-del: locked.txt absent.txt
-- prog.sh --
#!/bin/sh
exit 0
-- acc/README --
`)
	locked := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(locked, []byte("x"), 0444))
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	assert.NoFileExists(t, locked)
	assert.Contains(t, out.String(), "DEL: Deleted file "+locked+"\n")
	assert.NotContains(t, out.String(), "absent.txt")
}

func TestCheck_ArgumentsPassedVerbatim(t *testing.T) {
	dir := inline(t, `
-- testconfig.txt --
-run: prog.sh
-acc: acc
-add
-arg: "two words" 42 -- plain
-- prog.sh --
#!/bin/sh
for a in "$@"; do echo "[$a]"; done
-- acc/README --
`)
	c, out := newTestChecker(dir)

	result := c.Check(context.Background(), "testconfig.txt")

	require.True(t, result.Passed(), out.String())
	promoted, err := os.ReadFile(filepath.Join(dir, "acc", result.Promoted))
	require.NoError(t, err)
	assert.Equal(t, consoleHeader+"OUT: [two words]\nOUT: [42]\nOUT: [--]\nOUT: [plain]\nEXIT: 0\n", string(promoted))
}

func TestCheck_MissingTestFile(t *testing.T) {
	c, out := newTestChecker(t.TempDir())

	result := c.Check(context.Background(), "testconfig.txt")

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindConfiguration))
	assert.Contains(t, out.String(), "ERROR: Could not load test file testconfig.txt")
}

func TestCheckRaw(t *testing.T) {
	dir := fixture(t, "echo")
	c, out := newTestChecker(dir)

	result := c.CheckRaw(context.Background(), "-run: prog.sh -arg: hello -acc: acc")

	require.True(t, result.Passed(), out.String())
	assert.Equal(t, "acc_0.txt", result.Matched)
}

func TestCheckRaw_ConfigFile(t *testing.T) {
	dir := fixture(t, "chain")
	c, out := newTestChecker(dir)

	result := c.CheckRaw(context.Background(), "-cfg: sub/base.txt -dsc: from the command line")

	require.True(t, result.Passed(), out.String())
	assert.Equal(t, filepath.Join(dir, "sub"), result.Case.Dir)
	assert.Equal(t, "from the command line", result.Case.Description)
}

func TestCheckRaw_ParseError(t *testing.T) {
	dir := t.TempDir()
	c, out := newTestChecker(dir)

	result := c.CheckRaw(context.Background(), `-run: "prog.sh`)

	require.False(t, result.Passed())
	assert.True(t, types.HasKind(result.Error, types.KindConfiguration))
	assert.Contains(t, out.String(), "ERROR: Could not parse command line\n")
	assert.Contains(t, out.String(), "INPUT: -run: \"prog.sh\nPOS  : "+strings.Repeat(" ", 6)+"^\n")
	assert.Contains(t, out.String(), "USAGE: check")
	assert.NoFileExists(t, filepath.Join(dir, ArtifactFile))
}

func TestCheckOptions(t *testing.T) {
	dir := fixture(t, "echo")
	c, out := newTestChecker(dir)

	set, err := options.Parse("-run: prog.sh -acc: acc -arg: hello")
	require.NoError(t, err)
	result := c.CheckOptions(context.Background(), set)
	require.True(t, result.Passed(), out.String())

	result = c.CheckOptions(context.Background(), options.NewSet())
	require.False(t, result.Passed())
	assert.Contains(t, out.String(), "ERROR: -run option not provided\nERROR: -acc option not provided\n")
}
