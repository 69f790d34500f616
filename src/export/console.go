package export

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrintSection 打印问题标题和结果表，空结果打印提示
func PrintSection(w io.Writer, s Section) {
	printer := message.NewPrinter(language.English)
	fmt.Fprintf(w, "\n%d. %s\n", s.ID, s.Title)

	res := s.Result
	if res.Empty() {
		fmt.Fprintln(w, "(no matching rows)")
		return
	}

	header := append([]string{}, res.Levels...)
	header = append(header, res.Measure)

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	for _, row := range res.Rows {
		record := append([]string{}, row.Members...)
		record = append(record, printer.Sprintf("%.2f", row.Value))
		table.Append(record)
	}
	table.Render()
}
