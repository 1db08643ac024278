package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// RenderPDF lays the snapshot out as a one page document.
func RenderPDF(s Snapshot) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15,
		text.NewCol(12, "CRM Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, "Generated at "+s.GeneratedAt.Format(TimestampLayout)+" UTC", props.Text{Size: 9}),
	)

	m.AddRow(10,
		text.NewCol(8, "Metric", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, "Value", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)
	rows := []struct {
		label string
		value string
	}{
		{"Customers", fmt.Sprintf("%d", s.Customers)},
		{"Orders", fmt.Sprintf("%d", s.Orders)},
		{"Revenue", "$" + s.RevenueString()},
	}
	for _, row := range rows {
		m.AddRow(8,
			text.NewCol(8, row.label, props.Text{Size: 10}),
			text.NewCol(4, row.value, props.Text{Size: 10, Align: align.Right}),
		)
	}
	m.AddRow(10, col.New(12))

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// WritePDF renders the snapshot into dir and returns the file path.
func WritePDF(dir string, s Snapshot) (string, error) {
	body, err := RenderPDF(s)
	if err != nil {
		return "", fmt.Errorf("render report pdf: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, s.FileName())
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
