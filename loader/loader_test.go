package loader

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadSectorsOptionalColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sectors.csv", "Code,Name,Category,Is Priority Relevant\n"+
		"336411,Aircraft Manufacturing,Manufacturing,yes\n"+
		"\n"+
		"541330,Engineering Services,Services,\n")

	sectors, err := LoadSectors(path)
	require.NoError(t, err)
	require.Len(t, sectors, 2)
	assert.Equal(t, "336411", sectors[0].Code)
	assert.True(t, sectors[0].IsPriorityRelevant)
	assert.Equal(t, "Services", sectors[1].Category)
	assert.False(t, sectors[1].IsPriorityRelevant)
}

func TestLoadSectorsMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sectors.csv", "code,title\n1,x\n")

	_, err := LoadSectors(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "name"`)
}

func TestLoadEconomicFlowsKeepsBadAmountsAsNaN(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "econ.csv", "sourceProcessId,targetSectorCode,amount\n"+
		"A/US,B,\"1,250.5\"\n"+
		"B/US,A,n/a\n")

	recs, err := LoadEconomicFlows(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1250.5, recs[0].Amount)
	assert.Equal(t, 2, recs[0].Line)
	assert.True(t, math.IsNaN(recs[1].Amount))
}

func TestLoadSectorOutputsRejectsNegativeOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "out.csv", "sector_code,total_output\nA,-5\n")

	_, err := LoadSectorOutputs(path)
	assert.Error(t, err)
}

func TestLoadSectorOutputsDemandOptional(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "out.csv", "sector_code,total_output,final_demand\nA,100,40\nB,50,\n")

	out, err := LoadSectorOutputs(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].HasDemand)
	assert.Equal(t, 40.0, out[0].FinalDemand)
	assert.False(t, out[1].HasDemand)
}

func TestLoadProcessSectorsDefaultShare(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "links.csv", "processId,sectorCode,share\np1,A,\np2,A,0.25\n")

	links, err := LoadProcessSectors(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, links[0].Share)
	assert.Equal(t, 0.25, links[1].Share)
}

func TestLoadCrosswalkCSVAndJSON(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "cw.csv", "externalCodePrefix,prefixLength,internalSectorCode,weight\n"+
		"336411,6,336411,1\n"+
		"5413,,541300,1\n")
	jsonPath := writeFile(t, dir, "cw.json", `[
		{"externalCodePrefix":"336411","prefixLength":6,"internalSectorCode":"336411","weight":1},
		{"externalCodePrefix":"5413","internalSectorCode":"541300","weight":1}
	]`)

	for _, path := range []string{csvPath, jsonPath} {
		rows, err := LoadCrosswalk(path)
		require.NoError(t, err, path)
		require.Len(t, rows, 2)
		assert.Equal(t, 6, rows[0].PrefixLength)
		assert.Equal(t, 4, rows[1].PrefixLength, "blank length falls back to prefix length")
		assert.Equal(t, "541300", rows[1].InternalSectorCode)
	}
}

func TestLoadCrosswalkXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cw.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"External Code Prefix", "Prefix Length", "Internal Sector Code", "Weight"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"3364", 4, "336411", 0.6}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"3364", 4, "336414", 0.4}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rows, err := LoadCrosswalk(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "336414", rows[1].InternalSectorCode)
	assert.InDelta(t, 0.4, rows[1].Weight, 1e-12)
	assert.Equal(t, 3, rows[1].Line)
}

func TestReadSpendingRequest(t *testing.T) {
	inputs, err := ReadSpendingRequest(strings.NewReader(`[{"code":"336411","amount":1000000},{"code":"X","amount":"lots"}]`))
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, 1e6, inputs[0].Amount)
	assert.True(t, math.IsNaN(inputs[1].Amount))

	wrapped, err := ReadSpendingRequest(strings.NewReader(`{"sectors":[{"code":"336611","amount":5}]}`))
	require.NoError(t, err)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "336611", wrapped[0].Code)
}

func TestLoadBuildInputsReportsFailingFile(t *testing.T) {
	dir := t.TempDir()
	p := Paths{
		Sectors:          writeFile(t, dir, "s.csv", "code,name\nA,Alpha\n"),
		SectorOutputs:    writeFile(t, dir, "o.csv", "sector_code,total_output\nA,10\n"),
		EconomicFlows:    writeFile(t, dir, "e.csv", "sourceProcessId,targetSectorCode,amount\nA,A,1\n"),
		EnvironmentFlows: writeFile(t, dir, "f.csv", "processId,flowName,context,amount,unit\np,Methane,air,1,kg\n"),
		ProcessSectors:   writeFile(t, dir, "l.csv", "processId,sectorCode\np,A\n"),
		Crosswalk:        filepath.Join(dir, "missing.csv"),
	}

	_, err := LoadBuildInputs(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load crosswalk")

	p.Crosswalk = writeFile(t, dir, "cw.csv", "externalCodePrefix,prefixLength,internalSectorCode,weight\nA,1,A,1\n")
	in, err := LoadBuildInputs(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, in.Sectors, 1)
	assert.Len(t, in.EnvironmentFlows, 1)
	assert.Equal(t, "air", in.EnvironmentFlows[0].Context)
	assert.Nil(t, in.Characterization)
}
