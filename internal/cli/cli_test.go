package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ackchain-sim/internal/config"
	"github.com/LeJamon/ackchain-sim/internal/core/sim"
	"github.com/LeJamon/ackchain-sim/internal/report"
	"github.com/LeJamon/ackchain-sim/internal/storage/archive"
	"github.com/LeJamon/ackchain-sim/internal/storage/archive/mock_archive"
)

// tiny keeps runs fast: four peers, one simulated minute.
var tiny = []string{"--N", "4", "--TBS", "1", "--IAR", "1", "--AC", "2", "--IAA", "1", "--duration", "1", "--seed", "7"}

const tinyName = "N_4_TBS_1_IAR_1_ack_2_IAA_1_duration_1"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func withArgs(base []string, extra ...string) []string {
	return append(append([]string{}, base...), extra...)
}

func useArchive(t *testing.T, store archive.Store) {
	t.Helper()
	prev := openArchive
	openArchive = func(config.ArchiveConfig) (*archive.Archive, error) {
		return archive.New(store, "lz4", 0)
	}
	t.Cleanup(func() { openArchive = prev })
}

func TestRunWritesReport(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, withArgs(append([]string{"run"}, tiny...), "--out", dir)...)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Confirmed "), out)
	assert.Contains(t, out, "in 1 minutes")
	assert.Contains(t, out, "Total Throughput : ")
	assert.Contains(t, out, "Avg. time between 3rd Txn block creation and it becoming a MustInclude")

	data, err := os.ReadFile(filepath.Join(dir, tinyName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), tinyName+"\n"))
	assert.Contains(t, string(data), "Total Throughput (txns per sec) | ")
}

func TestRootRunsByDefault(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, withArgs(tiny, "--out", dir, "--no-report")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Total Throughput : ")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "--no-report writes nothing")
}

func TestRunIsDeterministic(t *testing.T) {
	a, err := execute(t, withArgs(tiny, "--no-report")...)
	require.NoError(t, err)
	b, err := execute(t, withArgs(tiny, "--no-report")...)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunTrace(t *testing.T) {
	out, err := execute(t, withArgs(tiny, "--no-report", "--trace")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Setting Genesis R-block R0")
	assert.Contains(t, out, "component=trace")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, withArgs(tiny, "--N", "0")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nodes")

	_, err = execute(t, "run", "--conf", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRunUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "acksim.yaml")
	content := "sim:\n  nodes: 4\n  tbs_kib: 1\n  iar_seconds: 1\n  ack_chains: 2\n  iaa_seconds: 1\n  duration_minutes: 1\noutput:\n  dir: " + dir + "\n"
	require.NoError(t, os.WriteFile(conf, []byte(content), 0644))

	_, err := execute(t, "run", "--conf", conf, "--AC", "3")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "N_4_TBS_1_IAR_1_ack_3_IAA_1_duration_1"))
	assert.NoError(t, err, "flags override the file")
}

func TestRunArchivesReport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mock_archive.NewMockStore(ctrl)
	store.EXPECT().Name().Return("mock").AnyTimes()
	store.EXPECT().Put(gomock.Any(), tinyName, gomock.Any()).Return(nil)
	store.EXPECT().Close().Return(nil)
	useArchive(t, store)

	_, err := execute(t, withArgs(tiny, "--no-report", "--archive", "memory")...)
	require.NoError(t, err)
}

func TestReportsCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := sim.DefaultParams()
	r := report.New(p, sim.Stats{ConfirmedTx: 42, Elapsed: p.End()}, now())
	codec, err := archive.NewCodec("lz4")
	require.NoError(t, err)
	data, err := codec.Encode(r)
	require.NoError(t, err)

	store := mock_archive.NewMockStore(ctrl)
	store.EXPECT().Name().Return("mock").AnyTimes()
	store.EXPECT().Close().Return(nil).AnyTimes()
	useArchive(t, store)

	store.EXPECT().Keys(gomock.Any()).Return([]string{"a", r.Name}, nil)
	out, err := execute(t, "reports", "list", "--archive", "memory")
	require.NoError(t, err)
	assert.Equal(t, "a\n"+r.Name+"\n", out)

	store.EXPECT().Get(gomock.Any(), r.Name).Return(data, nil)
	out, err = execute(t, "reports", "show", r.Name, "--archive", "memory")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, r.Name+"\nConfirmed 42 txns in 300 minutes\n"), out)

	store.EXPECT().Get(gomock.Any(), r.Name).Return(data, nil)
	out, err = execute(t, "reports", "show", "--table", r.Name, "--archive", "memory")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "NAME"), out)

	store.EXPECT().Get(gomock.Any(), "missing").Return(nil, archive.ErrNotFound)
	_, err = execute(t, "reports", "show", "missing", "--archive", "memory")
	assert.ErrorIs(t, err, archive.ErrNotFound)

	store.EXPECT().Delete(gomock.Any(), "a").Return(nil)
	_, err = execute(t, "reports", "delete", "a", "--archive", "memory")
	require.NoError(t, err)
}

func TestReportsRequireArchive(t *testing.T) {
	_, err := execute(t, "reports", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no archive configured")
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, withArgs(append([]string{"sweep"}, tiny...),
		"--out", dir, "--vary", "N=3,4", "--vary", "AC=1,2", "--parallel", "2")...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, out)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"N_3_TBS_1_IAR_1_ack_1_IAA_1_duration_1",
		"N_3_TBS_1_IAR_1_ack_2_IAA_1_duration_1",
		"N_4_TBS_1_IAR_1_ack_1_IAA_1_duration_1",
		"N_4_TBS_1_IAR_1_ack_2_IAA_1_duration_1",
	}, names)
}

func TestParseAxes(t *testing.T) {
	axes, err := parseAxes([]string{"N=16, 32", "AC=4"})
	require.NoError(t, err)
	require.Len(t, axes, 2)
	assert.Equal(t, axis{key: "N", values: []int{16, 32}}, axes[0])
	assert.Equal(t, axis{key: "AC", values: []int{4}}, axes[1])

	for _, bad := range [][]string{
		nil,
		{"N"},
		{"N="},
		{"seed=1,2"},
		{"N=1,x"},
		{"N=1,1"},
		{"N=1", "N=2"},
	} {
		_, err := parseAxes(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestCombinations(t *testing.T) {
	base := sim.DefaultParams()
	combos := combinations(base, []axis{
		{key: "N", values: []int{8, 16}},
		{key: "IAA", values: []int{1, 2, 3}},
	})
	require.Len(t, combos, 6)
	assert.Equal(t, 8, combos[0].Nodes)
	assert.Equal(t, 1, combos[0].AckIntervalSec)
	assert.Equal(t, 8, combos[2].Nodes)
	assert.Equal(t, 3, combos[2].AckIntervalSec)
	assert.Equal(t, 16, combos[5].Nodes)
	assert.Equal(t, base.AckChains, combos[5].AckChains)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "acksim version "+Version)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acksim.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+path+"\n", out)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)

	cfg, err := config.LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Sim.Nodes)
	assert.Equal(t, 32, cfg.Sim.AckChains)

	// the written file drives a run
	reportDir := t.TempDir()
	_, err = execute(t, withArgs(tiny, "--conf", path, "--out", reportDir)...)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(reportDir, tinyName))
	assert.NoError(t, err)
}
