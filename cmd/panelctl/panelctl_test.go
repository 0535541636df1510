package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/panelio"
	"MacroPanel/pkg/util"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func readCSVFile(t *testing.T, path string) models.Panel {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	p, err := panelio.ReadCSV(f)
	require.NoError(t, err)
	return p
}

func simulated(t *testing.T) (string, int) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panel.csv")
	_, err := run(t, "simulate", "--cids", "AUD,CAD", "--xcats", "XR",
		"--start", "2020-01-01", "--end", "2020-01-31", "--seed", "7", "--out", path)
	require.NoError(t, err)

	start, _ := util.ParseDate("2020-01-01")
	end, _ := util.ParseDate("2020-01-31")
	return path, len(util.BusinessDays(start, end))
}

func TestSimulateIsDeterministic(t *testing.T) {
	path, days := simulated(t)
	p := readCSVFile(t, path)
	assert.Len(t, p, 2*days)
	assert.Equal(t, []string{"AUD", "CAD"}, p.CrossSections())

	again, err := run(t, "simulate", "--cids", "AUD,CAD", "--xcats", "XR",
		"--start", "2020-01-01", "--end", "2020-01-31", "--seed", "7")
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(raw), again)
}

func TestScoreCommand(t *testing.T) {
	in, days := simulated(t)
	out := filepath.Join(t.TempDir(), "scores.csv")

	_, err := run(t, "score", "--in", in, "--xcat", "XR", "--neutral", "mean", "--min-obs", "0", "--out", out)
	require.NoError(t, err)

	p := readCSVFile(t, out)
	assert.Len(t, p, 2*days)
	assert.Equal(t, []string{"XR_ZN"}, p.Categories())
}

func TestScoreCommandRejectsBadNeutral(t *testing.T) {
	in, _ := simulated(t)
	_, err := run(t, "score", "--in", in, "--xcat", "XR", "--neutral", "mode")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestSplitCommand(t *testing.T) {
	in, _ := simulated(t)
	out, err := run(t, "split", "--in", in, "--xcat", "XR", "--n-splits", "2", "--test-size", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "FOLD"))
	assert.Contains(t, lines[1], "2020-01-01")
}

func TestSplitCommandNeedsOneMode(t *testing.T) {
	in, _ := simulated(t)
	_, err := run(t, "split", "--in", in, "--xcat", "XR", "--n-splits", "2", "--train-intervals", "5")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestCapCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "weights.csv")
	require.NoError(t, os.WriteFile(in, []byte(
		"cid,xcat,real_date,value\nA,W,2024-01-02,0.6\nB,W,2024-01-02,0.2\nC,W,2024-01-02,0.2\n"), 0o600))
	out := filepath.Join(dir, "capped.csv")

	_, err := run(t, "cap", "--in", in, "--xcat", "W", "--cap", "0.5", "--out", out)
	require.NoError(t, err)

	p := readCSVFile(t, out)
	require.Len(t, p, 3)
	got := map[string]float64{}
	for _, o := range p {
		got[o.CrossSection] = o.Value
	}
	assert.InDelta(t, 0.5, got["A"], 1e-9)
	assert.InDelta(t, 0.25, got["B"], 1e-9)
	assert.InDelta(t, 0.25, got["C"], 1e-9)
}

const flagsCSV = `cid,xcat,real_date,value
A,FLAG,2024-01-02,0
A,FLAG,2024-01-03,1
A,FLAG,2024-01-04,1
A,FLAG,2024-01-05,0
A,FLAG,2024-01-08,1
B,FLAG,2024-01-02,1
B,FLAG,2024-01-03,0
`

func TestBlacklistCommand(t *testing.T) {
	in := filepath.Join(t.TempDir(), "flags.csv")
	require.NoError(t, os.WriteFile(in, []byte(flagsCSV), 0o600))

	out, err := run(t, "blacklist", "--in", in, "--xcat", "FLAG")
	require.NoError(t, err)

	var got map[string]models.DateRangeDTO
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]models.DateRangeDTO{
		"A_1": {Start: "2024-01-03", End: "2024-01-04"},
		"A_2": {Start: "2024-01-08", End: "2024-01-08"},
		"B":   {Start: "2024-01-02", End: "2024-01-02"},
	}, got)
}

func TestScoreCommandAppliesBlacklist(t *testing.T) {
	body := flagsCSV + `A,XR,2024-01-02,1
A,XR,2024-01-03,2
A,XR,2024-01-04,3
A,XR,2024-01-05,4
B,XR,2024-01-02,5
B,XR,2024-01-03,6
`
	in := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(in, []byte(body), 0o600))

	out, err := run(t, "score", "--in", in, "--xcat", "XR", "--min-obs", "0", "--blacklist-xcat", "FLAG")
	require.NoError(t, err)

	p, err := panelio.ReadCSV(strings.NewReader(out))
	require.NoError(t, err)
	kept := map[string]bool{}
	for _, o := range p {
		kept[o.CrossSection+" "+util.FormatDate(o.Date)] = true
	}
	assert.Equal(t, map[string]bool{
		"A 2024-01-02": true,
		"A 2024-01-05": true,
		"B 2024-01-03": true,
	}, kept)
}

func TestCompositeCommand(t *testing.T) {
	in := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, os.WriteFile(in, []byte(`cid,xcat,real_date,value
A,XR_ZN,2024-01-02,2
A,CRY_ZN,2024-01-02,4
A,XR_ZN,2024-01-03,1
B,XR_ZN,2024-01-02,-2
B,CRY_ZN,2024-01-02,-4
`), 0o600))

	out, err := run(t, "composite", "--in", in, "--xcat", "XR_ZN,CRY_ZN", "--weights", "1,3", "--new-xcat", "MIX")
	require.NoError(t, err)
	p, err := panelio.ReadCSV(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, p, 3)
	got := map[string]float64{}
	for _, o := range p {
		assert.Equal(t, "MIX", o.Category)
		got[o.CrossSection+" "+util.FormatDate(o.Date)] = o.Value
	}
	assert.InDelta(t, 3.5, got["A 2024-01-02"], 1e-9)
	assert.InDelta(t, 1, got["A 2024-01-03"], 1e-9)
	assert.InDelta(t, -3.5, got["B 2024-01-02"], 1e-9)

	out, err = run(t, "composite", "--in", in, "--xcat", "XR_ZN,CRY_ZN", "--nan-treatment", "drop")
	require.NoError(t, err)
	p, err = panelio.ReadCSV(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, p, 2)

	_, err = run(t, "composite", "--in", in, "--xcat", "XR_ZN,CRY_ZN", "--signs", "1,0")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestHedgeCommand(t *testing.T) {
	var b strings.Builder
	b.WriteString("cid,xcat,real_date,value\n")
	start, _ := util.ParseDate("2024-01-01")
	end, _ := util.ParseDate("2024-03-29")
	for i, d := range util.BusinessDays(start, end) {
		x := float64((i*4)%9) - 4
		fmt.Fprintf(&b, "USD,EQXR,%s,%g\n", util.FormatDate(d), x)
		fmt.Fprintf(&b, "AUD,FXXR,%s,%g\n", util.FormatDate(d), 0.25+1.5*x)
	}
	in := filepath.Join(t.TempDir(), "returns.csv")
	require.NoError(t, os.WriteFile(in, []byte(b.String()), 0o600))

	out, err := run(t, "hedge", "--in", in, "--xcat", "FXXR", "--hedge-return", "USD_EQXR", "--min-obs", "10", "--estimates")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "COEFFICIENT")
	assert.Contains(t, lines[1], "2024-01-31")
	assert.Contains(t, lines[1], "1.500000")
	assert.Contains(t, lines[1], "0.250000")

	out, err = run(t, "hedge", "--in", in, "--xcat", "FXXR", "--hedge-return", "USD_EQXR", "--min-obs", "10", "--refreq", "q")
	require.NoError(t, err)
	p, err := panelio.ReadCSV(strings.NewReader(out))
	require.NoError(t, err)
	require.NotEmpty(t, p)
	assert.Equal(t, "FXXR_HR", p[0].Category)
	assert.Equal(t, "2024-04-01", util.FormatDate(p[0].Date))

	_, err = run(t, "hedge", "--in", in, "--xcat", "FXXR", "--hedge-return", "USD_EQXR", "--refreq", "d")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestScoreMinObsHelp(t *testing.T) {
	f := newScoreCmd().Flags().Lookup("min-obs")
	require.NotNil(t, f)
	assert.Equal(t, "261", f.DefValue)
	assert.Contains(t, f.Usage, "valid observations per cross-section")
	assert.NotContains(t, f.Usage, "days")
}

func TestMissingInput(t *testing.T) {
	_, err := run(t, "cap", "--in", filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}
