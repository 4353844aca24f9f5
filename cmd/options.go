package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
)

// loadFlags are the dataset reading flags shared by every command that
// takes an input file.
type loadFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	sheetName  string
	sheetIndex int
}

func (l *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.delimiter, "delimiter", "", "CSV delimiter: ',', ';' or 'tab' (default: sniffed)")
	cmd.Flags().StringVar(&l.decimal, "decimal", "", "decimal separator: '.' or 'comma' (default: auto)")
	cmd.Flags().StringVar(&l.thousands, "thousands", "", "thousands separator: ',', '.' or 'space' (default: auto)")
	cmd.Flags().StringVar(&l.sheetName, "sheet-name", "", "XLSX sheet name")
	cmd.Flags().IntVar(&l.sheetIndex, "sheet-index", 1, "XLSX sheet index (1-based), used when --sheet-name is empty")
}

func (l *loadFlags) options() (analysis.Options, error) {
	opt := analysis.DefaultOptions()
	switch l.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", l.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(l.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", l.decimal)
	}
	switch strings.ToLower(l.thousands) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", l.thousands)
	}
	if opt.DecimalSeparator != 0 && opt.DecimalSeparator == opt.ThousandsSeparator {
		return opt, fmt.Errorf("--decimal and --thousands must differ")
	}
	opt.SheetName = l.sheetName
	if l.sheetIndex > 0 {
		opt.SheetIndex = l.sheetIndex
	}
	return opt, nil
}
