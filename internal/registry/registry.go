// Package registry loads the curated public-sector organisation registry
// from YAML or XLSX files into the data source table.
package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/tenderscope/intel-cli/internal/model"
)

// yamlEntry is one registry record in the YAML seed file.
type yamlEntry struct {
	Name           string `yaml:"name"`
	OrgType        string `yaml:"org_type"`
	GovernanceURL  string `yaml:"governance_url"`
	Platform       string `yaml:"platform"`
	BoardPapersURL string `yaml:"board_papers_url"`
	Website        string `yaml:"website"`
}

// LoadYAML reads registry entries from a YAML file. Entries without a name
// or org type are rejected with their index so seed files fail loudly.
func LoadYAML(path string) ([]model.DataSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var entries []yamlEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}

	out := make([]model.DataSource, 0, len(entries))
	for i, e := range entries {
		ds, err := toDataSource(e.Name, e.OrgType, e.GovernanceURL, e.Platform, e.BoardPapersURL, e.Website)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: %s entry %d", path, i)
		}
		out = append(out, ds)
	}
	return out, nil
}

// xlsxColumns maps recognized header names to fields.
var xlsxColumns = map[string]string{
	"name":             "name",
	"organisation":     "name",
	"org type":         "org_type",
	"org_type":         "org_type",
	"type":             "org_type",
	"governance url":   "governance_url",
	"governance_url":   "governance_url",
	"platform":         "platform",
	"board papers url": "board_papers_url",
	"board_papers_url": "board_papers_url",
	"website":          "website",
}

// LoadXLSX reads registry entries from the first sheet of an XLSX workbook.
// The header row decides column positions; unknown columns are ignored.
func LoadXLSX(path string) ([]model.DataSource, error) {
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}
	if len(xlFile.Sheets) == 0 {
		return nil, eris.Errorf("registry: %s has no sheets", path)
	}
	sheet := xlFile.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.Errorf("registry: %s sheet is empty", path)
	}

	// Build column index from header row.
	colIdx := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		header := strings.ToLower(strings.TrimSpace(cell.String()))
		if field, ok := xlsxColumns[header]; ok {
			colIdx[field] = i
		}
	}
	if _, ok := colIdx["name"]; !ok {
		return nil, eris.Errorf("registry: %s has no name column", path)
	}

	getCol := func(row *xlsx.Row, field string) string {
		i, ok := colIdx[field]
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}

	var out []model.DataSource
	for rowIdx := 1; rowIdx < len(sheet.Rows); rowIdx++ {
		row := sheet.Rows[rowIdx]
		name := getCol(row, "name")
		if name == "" {
			continue // blank padding rows are common in hand-maintained sheets
		}
		ds, err := toDataSource(name, getCol(row, "org_type"), getCol(row, "governance_url"),
			getCol(row, "platform"), getCol(row, "board_papers_url"), getCol(row, "website"))
		if err != nil {
			return nil, eris.Wrapf(err, "registry: %s row %d", path, rowIdx+1)
		}
		out = append(out, ds)
	}
	return out, nil
}

func toDataSource(name, orgType, governanceURL, platform, boardPapersURL, website string) (model.DataSource, error) {
	name = strings.TrimSpace(name)
	orgType = strings.ToUpper(strings.TrimSpace(orgType))
	if name == "" {
		return model.DataSource{}, eris.New("missing name")
	}
	if orgType == "" {
		return model.DataSource{}, eris.Errorf("missing org type for %q", name)
	}
	return model.DataSource{
		Name:           name,
		OrgType:        orgType,
		GovernanceURL:  strings.TrimSpace(governanceURL),
		Platform:       strings.TrimSpace(platform),
		BoardPapersURL: strings.TrimSpace(boardPapersURL),
		Website:        strings.TrimSpace(website),
	}, nil
}
