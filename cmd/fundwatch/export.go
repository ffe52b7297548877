package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/fundwatch/internal/cli"
	"github.com/Veraticus/fundwatch/internal/config"
	"github.com/Veraticus/fundwatch/internal/model"
)

// exportRow is one CSV line of the directory export.
type exportRow struct {
	AmountUSDMillions *float64 `csv:"amount_usd_millions"`
	AnnouncementDate  string   `csv:"announcement_date"`
	FundName          string   `csv:"fund_name"`
	FirmName          string   `csv:"firm_name"`
	FirmWebsite       string   `csv:"firm_website"`
	Amount            string   `csv:"amount"`
	Category          string   `csv:"category"`
	Stage             string   `csv:"stage"`
	Strategy          string   `csv:"strategy"`
	TargetGeography   string   `csv:"target_geography"`
	Location          string   `csv:"location"`
	SourceName        string   `csv:"source_name"`
	SourceURL         string   `csv:"source_url"`
	DedupeKey         string   `csv:"dedupe_key"`
	DateAdded         string   `csv:"date_added"`
	CoveredDate       string   `csv:"covered_date"`
	Articles          int      `csv:"articles"`
	IsCovered         bool     `csv:"is_covered"`
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the fund directory as CSV",
		RunE:  runExport,
	}
	cmd.Flags().StringP("out", "o", "funds.csv", "Output file, or - for stdout")
	_ = viper.BindPFlag("export.out", cmd.Flags().Lookup("out"))
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	_, dir, err := loadDirectory()
	if err != nil {
		return err
	}

	out := viper.GetString("export.out")
	if out == "-" {
		return writeCSV(cmd.OutOrStdout(), dir.Funds)
	}

	out = config.ExpandPath(out)
	if err := config.EnsureParent(out); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := writeCSV(f, dir.Funds); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d funds to %s", len(dir.Funds), out)))
	return err
}

func writeCSV(w io.Writer, funds []model.Fund) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	rows := exportRows(funds)
	var err error
	if len(rows) == 0 {
		err = enc.EncodeHeader(exportRow{})
	} else {
		err = enc.Encode(rows)
	}
	if err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func exportRows(funds []model.Fund) []exportRow {
	rows := make([]exportRow, 0, len(funds))
	for _, f := range funds {
		row := exportRow{
			AmountUSDMillions: f.AmountUSDMillions,
			AnnouncementDate:  f.AnnouncementDate,
			FundName:          f.FundName,
			FirmName:          f.FirmName,
			Amount:            f.Amount,
			Category:          string(f.Category),
			Stage:             string(f.Stage),
			Strategy:          string(f.Strategy),
			TargetGeography:   string(f.TargetGeography),
			Location:          f.Location.String(),
			SourceName:        f.SourceName,
			SourceURL:         f.SourceURL,
			DedupeKey:         f.DedupeKey,
			DateAdded:         f.DateAdded,
			Articles:          len(f.Articles),
			IsCovered:         f.IsCovered,
		}
		if f.FirmWebsite != nil {
			row.FirmWebsite = *f.FirmWebsite
		}
		if f.CoveredDate != nil {
			row.CoveredDate = *f.CoveredDate
		}
		rows = append(rows, row)
	}
	return rows
}
