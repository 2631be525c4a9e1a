package pipeline

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospector/internal/model"
)

var (
	contactHeader = []string{"Company", "Domain", "Name", "Title", "LinkedIn", "Subject", "Message"}
	entityHeader  = []string{"Company", "Domain", "Reason"}
)

// DecodeAggregate reads the aggregate stored in a pipeline result.
func DecodeAggregate(res *model.PipelineResult) (*Aggregate, error) {
	if res == nil {
		return nil, eris.New("pipeline: no result")
	}
	var agg Aggregate
	if err := json.Unmarshal(res.Data, &agg); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode result")
	}
	return &agg, nil
}

// ExportXLSX writes the contacts and entities of agg to an XLSX workbook.
func ExportXLSX(path string, agg *Aggregate) error {
	f := xlsx.NewFile()

	contacts, err := f.AddSheet("Contacts")
	if err != nil {
		return eris.Wrap(err, "xlsx: add contacts sheet")
	}
	addRow(contacts, contactHeader)

	messages := make(map[string]Artifact, len(agg.Artifacts))
	for _, a := range agg.Artifacts {
		messages[contactKey(a.Contact)] = a
	}
	for _, c := range agg.Contacts {
		a := messages[contactKey(c)]
		addRow(contacts, []string{c.Entity.Name, c.Entity.Domain, c.Name, c.Title, c.LinkedIn, a.Subject, a.Body})
	}

	entities, err := f.AddSheet("Entities")
	if err != nil {
		return eris.Wrap(err, "xlsx: add entities sheet")
	}
	addRow(entities, entityHeader)
	for _, e := range agg.Entities {
		addRow(entities, []string{e.Name, e.Domain, e.Reason})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func contactKey(c Contact) string {
	return c.Entity.Domain + "|" + c.Name
}
