package cli

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const tablePadding = 2

// writeTable prints rows in aligned columns. Columns whose cells are all
// numbers (or "-") are right-aligned. headers may be nil.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	numeric := make([]bool, colCount)
	for idx := range numeric {
		numeric[idx] = len(rows) > 0
	}
	updateWidth := func(index int, value string) {
		displayWidth := runewidth.StringWidth(stripANSI(value))
		if displayWidth > widths[index] {
			widths[index] = displayWidth
		}
	}

	for idx, header := range headers {
		updateWidth(idx, header)
	}
	for _, row := range rows {
		for idx := 0; idx < colCount; idx++ {
			cell := ""
			if idx < len(row) {
				cell = row[idx]
			}
			updateWidth(idx, cell)
			if !isNumericCell(cell) {
				numeric[idx] = false
			}
		}
	}

	writer := bufio.NewWriter(out)
	var writeErr error
	writeString := func(value string) {
		if writeErr != nil {
			return
		}
		_, writeErr = writer.WriteString(value)
	}
	writeRow := func(row []string) {
		for idx := 0; idx < colCount; idx++ {
			cell := ""
			if idx < len(row) {
				cell = row[idx]
			}
			padding := max(widths[idx]-runewidth.StringWidth(stripANSI(cell)), 0)
			last := idx == colCount-1
			if numeric[idx] {
				writeString(strings.Repeat(" ", padding))
				writeString(cell)
			} else {
				writeString(cell)
				if !last {
					writeString(strings.Repeat(" ", padding))
				}
			}
			if !last {
				writeString(strings.Repeat(" ", tablePadding))
			}
		}
		writeString("\n")
	}

	if len(headers) > 0 {
		writeRow(headers)
	}
	for _, row := range rows {
		writeRow(row)
	}
	if writeErr != nil {
		return writeErr
	}
	return writer.Flush()
}

func isNumericCell(value string) bool {
	if value == "-" {
		return true
	}
	_, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
	return err == nil
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func stripANSI(value string) string {
	if value == "" {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		i += 2
		for i < len(value) {
			ch := value[i]
			if ch >= 0x40 && ch <= 0x7e {
				break
			}
			i++
		}
	}
	return b.String()
}
