// Package export renders snapshots, diffs and histories as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/xuri/excelize/v2"
)

// ContentType of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names
const (
	SheetSnapshot = "as_of"
	SheetDiff     = "diff"
	SheetVersions = "versions"
	SheetTimeline = "timeline"
)

type workbook struct {
	f      *excelize.File
	header int
}

func newWorkbook() (*workbook, error) {
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	return &workbook{f: f, header: header}, nil
}

// sheet creates (or renames the default sheet to) name and writes the header row.
func (b *workbook) sheet(name string, columns []string) error {
	if b.f.SheetCount == 1 && b.f.GetSheetName(0) == "Sheet1" {
		if err := b.f.SetSheetName("Sheet1", name); err != nil {
			return err
		}
	} else if _, err := b.f.NewSheet(name); err != nil {
		return err
	}
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := b.f.SetSheetRow(name, "A1", &row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := b.f.SetCellStyle(name, "A1", last, b.header); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	return b.f.SetColWidth(name, "A", lastCol, 22)
}

func (b *workbook) row(sheet string, n int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	return b.f.SetSheetRow(sheet, cell, &values)
}

func (b *workbook) finish(w io.Writer) error {
	defer b.f.Close()
	if err := b.f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatEnd(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// WriteSnapshots writes one row per entity with a column per detail type.
func WriteSnapshots(w io.Writer, snaps []models.Snapshot) error {
	b, err := newWorkbook()
	if err != nil {
		return err
	}

	var detailTypes []string
	for _, s := range snaps {
		for _, d := range s.Details {
			if !slices.Contains(detailTypes, d.DetailType) {
				detailTypes = append(detailTypes, d.DetailType)
			}
		}
	}
	slices.Sort(detailTypes)

	columns := append([]string{"entity_uid", "entity_type", "display_name", "valid_from", "valid_to", "as_of"}, detailTypes...)
	if err := b.sheet(SheetSnapshot, columns); err != nil {
		return err
	}
	for i, s := range snaps {
		values := []any{
			s.Entity.EntityUID.String(), s.Entity.EntityType, s.Entity.DisplayName,
			formatTime(s.Entity.ValidFrom), formatEnd(s.Entity.ValidTo), formatTime(s.AsOf),
		}
		for _, dt := range detailTypes {
			d, _ := s.Detail(dt)
			values = append(values, d.DetailValue)
		}
		if err := b.row(SheetSnapshot, i+2, values...); err != nil {
			return err
		}
	}
	return b.finish(w)
}

// WriteDiff writes one row per changed field; keys without field changes get one row.
func WriteDiff(w io.Writer, d models.DiffResult) error {
	b, err := newWorkbook()
	if err != nil {
		return err
	}
	if err := b.sheet(SheetDiff, []string{"kind", "stream", "entity_uid", "detail_type", "field", "from", "to"}); err != nil {
		return err
	}

	n := 2
	for _, changes := range [][]models.Change{d.Created, d.Updated, d.Closed} {
		for _, c := range changes {
			fields := c.Fields
			if len(fields) == 0 {
				fields = []models.FieldChange{{}}
			}
			for _, fc := range fields {
				err := b.row(SheetDiff, n, c.Kind, c.Stream, c.EntityUID.String(), c.DetailType,
					fc.Field, cellValue(fc.From), cellValue(fc.To))
				if err != nil {
					return err
				}
				n++
			}
		}
	}
	return b.finish(w)
}

// WriteHistory writes the version list and the merged timeline on two sheets.
func WriteHistory(w io.Writer, h models.History) error {
	b, err := newWorkbook()
	if err != nil {
		return err
	}
	if err := b.sheet(SheetVersions, []string{"entity_uid", "entity_type", "display_name", "valid_from", "valid_to", "is_current", "details"}); err != nil {
		return err
	}
	for i, hv := range h.Versions {
		v := hv.Version
		err := b.row(SheetVersions, i+2, v.EntityUID.String(), v.EntityType, v.DisplayName,
			formatTime(v.ValidFrom), formatEnd(v.ValidTo), v.IsCurrent, len(hv.Details))
		if err != nil {
			return err
		}
	}

	if err := b.sheet(SheetTimeline, []string{"stream", "detail_type", "valid_from", "valid_to", "is_current", "hashdiff", "changed_fields"}); err != nil {
		return err
	}
	for i, ev := range h.Timeline {
		fields := make([]string, 0, len(ev.Changes))
		for name := range ev.Changes {
			fields = append(fields, name)
		}
		slices.Sort(fields)
		err := b.row(SheetTimeline, i+2, ev.Stream, ev.DetailType, formatTime(ev.ValidFrom), formatEnd(ev.ValidTo),
			ev.IsCurrent, ev.Hashdiff, fmt.Sprint(fields))
		if err != nil {
			return err
		}
	}
	return b.finish(w)
}

func cellValue(v any) any {
	if v == nil {
		return ""
	}
	return v
}
