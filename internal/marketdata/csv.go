// Package marketdata replays historical bars for offline runs. The CSV
// feed reads 1-minute bars and resamples them into the three series the
// controller subscribes to: primary 1-minute, daily, and the execution
// timeframe.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"spiderexec/internal/model"
)

// CSVFeed reads 1-minute bars from a CSV file with the header
// ts,open,high,low,close,bid,ask (ts in RFC3339).
type CSVFeed struct {
	path        string
	instrument  string
	execMinutes int
}

// NewCSVFeed creates a feed over the given file. execMinutes is the
// execution timeframe in minutes.
func NewCSVFeed(path, instrument string, execMinutes int) *CSVFeed {
	return &CSVFeed{path: path, instrument: instrument, execMinutes: execMinutes}
}

// Run parses the file and calls handle for each bar, in fixed series
// order per minute: primary first, then daily on a day roll, then the
// execution bar on a timeframe boundary. Stops at EOF or on error.
func (f *CSVFeed) Run(handle func(model.Bar) error) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("csv feed: open: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 7

	// Skip header
	if _, err := r.Read(); err != nil {
		return fmt.Errorf("csv feed: header: %w", err)
	}

	lineNo := 1
	var (
		execBucket *model.Bar
		execCount  int
		dayBucket  *model.Bar
		currentDay string
	)

	flushExec := func(ts time.Time, bid, ask float64) error {
		if execBucket == nil {
			return nil
		}
		b := *execBucket
		b.TS = ts
		b.Bid = bid
		b.Ask = ask
		execBucket = nil
		execCount = 0
		return handle(b)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("csv feed: line %d: %w", lineNo, err)
		}
		lineNo++

		bar, err := parseRow(rec, f.instrument)
		if err != nil {
			return fmt.Errorf("csv feed: line %d: %w", lineNo, err)
		}

		// Day roll: emit the finished daily bar before the new day's bars.
		day := bar.TS.Format("2006-01-02")
		if currentDay != "" && day != currentDay && dayBucket != nil {
			d := *dayBucket
			d.Series = model.SeriesDaily
			if err := handle(d); err != nil {
				return err
			}
			dayBucket = nil
		}
		currentDay = day

		// Primary 1-minute bar first.
		if err := handle(bar); err != nil {
			return err
		}

		mergeInto(&dayBucket, bar)
		mergeInto(&execBucket, bar)
		execCount++

		if execCount >= f.execMinutes {
			execBucket.Series = model.SeriesExecution
			if err := flushExec(bar.TS, bar.Bid, bar.Ask); err != nil {
				return err
			}
		}
	}

	// Final partial execution bucket is dropped: the controller only
	// acts on finished bars.
	return nil
}

func parseRow(rec []string, instrument string) (model.Bar, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return model.Bar{}, fmt.Errorf("bad ts %q: %w", rec[0], err)
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("bad field %q: %w", rec[i+1], err)
		}
		vals[i] = v
	}
	return model.Bar{
		Instrument: instrument,
		Series:     model.SeriesPrimary,
		TS:         ts,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Bid:        vals[4],
		Ask:        vals[5],
	}, nil
}

// mergeInto aggregates a 1-minute bar into a forming bucket.
func mergeInto(bucket **model.Bar, bar model.Bar) {
	if *bucket == nil {
		b := bar
		*bucket = &b
		return
	}
	b := *bucket
	if bar.High > b.High {
		b.High = bar.High
	}
	if bar.Low < b.Low {
		b.Low = bar.Low
	}
	b.Close = bar.Close
	b.Bid = bar.Bid
	b.Ask = bar.Ask
	b.TS = bar.TS
}
