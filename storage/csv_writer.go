package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"market-search/models"
)

var _ ListingWriter = (*CSVWriter)(nil)

// CSVWriter writes listings as CSV to any io.Writer.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	writer *csv.Writer
}

// NewCSVWriter writes the header row to w.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)

	// Write header
	if err := cw.Write([]string{
		"id", "title", "price", "price_raw", "status", "status_class",
		"region_id", "region_name", "time_ago", "updated_at", "link", "img",
	}); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	cw.Flush()

	return &CSVWriter{writer: cw}, cw.Error()
}

// Write appends one row per listing.
func (c *CSVWriter) Write(listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		updated := ""
		switch {
		case l.UpdatedAt != nil:
			updated = l.UpdatedAt.Format(time.RFC3339)
		case l.CreatedAt != nil:
			updated = l.CreatedAt.Format(time.RFC3339)
		}
		row := []string{
			l.ID,
			l.Title,
			l.Price,
			strconv.FormatInt(l.PriceRaw, 10),
			l.Status,
			string(models.ClassifyStatus(l.Status)),
			l.RegionID().String(),
			l.RegionName,
			l.TimeAgo,
			updated,
			l.Link,
			l.Img,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes buffered rows. The underlying writer is owned by the caller.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.writer.Error()
}
