package extract

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"buurtstat/domain/frame"
	apperrors "buurtstat/internal/errors"
)

// CBSClient downloads neighborhood indicators from the CBS StatLine
// OData API.
type CBSClient struct {
	BaseURL string
	TableID string
	Timeout time.Duration
	client  *http.Client
}

func NewCBSClient(baseURL, tableID string) *CBSClient {
	timeout := 120 * time.Second
	return &CBSClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		TableID: tableID,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Download fetches the typed data set for the configured table, keeps
// rows whose Perioden value contains year, and standardizes columns.
func (c *CBSClient) Download(ctx context.Context, year string) (*frame.Frame, error) {
	records, err := c.fetchTypedDataSet(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.ExtractError(
			fmt.Sprintf("CBS table %s returned no rows", c.TableID), nil)
	}

	if year != "" {
		filtered := records[:0]
		for _, rec := range records {
			if period, ok := rec["Perioden"]; ok {
				if !strings.Contains(asString(period), year) {
					continue
				}
			}
			filtered = append(filtered, rec)
		}
		records = filtered
		log.Printf("[Extract] Filtered CBS data to year %s: %d rows", year, len(records))
	}

	raw, err := recordsToFrame(records)
	if err != nil {
		return nil, err
	}
	return StandardizeCBSColumns(raw)
}

// DownloadAndSave downloads the table and writes it as CSV for reuse
// in later runs.
func (c *CBSClient) DownloadAndSave(ctx context.Context, year, savePath string) (*frame.Frame, error) {
	data, err := c.Download(ctx, year)
	if err != nil {
		return nil, err
	}
	if savePath != "" {
		if err := WriteCSV(data, savePath); err != nil {
			return nil, err
		}
		log.Printf("[Extract] Saved CBS data to %s", savePath)
	}
	return data, nil
}

func (c *CBSClient) fetchTypedDataSet(ctx context.Context) ([]map[string]any, error) {
	url := fmt.Sprintf("%s/%s/TypedDataSet?$format=json", c.BaseURL, c.TableID)
	var all []map[string]any

	// The API pages large tables; follow odata.nextLink until exhausted.
	for url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, apperrors.ExternalServiceError("failed to build CBS request", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, apperrors.ExternalServiceError("CBS StatLine request failed", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, apperrors.ExternalServiceError("failed to read CBS response", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.ExternalServiceError(
				fmt.Sprintf("CBS StatLine returned status %d", resp.StatusCode), nil)
		}

		var page struct {
			Value    []map[string]any `json:"value"`
			NextLink string           `json:"odata.nextLink"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, apperrors.ExternalServiceError("failed to decode CBS response", err)
		}
		all = append(all, page.Value...)
		url = page.NextLink
	}
	return all, nil
}

// recordsToFrame converts OData records into a Frame. Numeric JSON
// values become numeric columns; everything else is a string column.
func recordsToFrame(records []map[string]any) (*frame.Frame, error) {
	names := make(map[string]bool)
	numeric := make(map[string]bool)
	for _, rec := range records {
		for name, val := range rec {
			if !names[name] {
				names[name] = true
				numeric[name] = true
			}
			switch val.(type) {
			case float64, json.Number, nil:
			default:
				numeric[name] = false
			}
		}
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	f := frame.New(len(records))
	for _, name := range ordered {
		if numeric[name] {
			vals := make([]float64, len(records))
			for i, rec := range records {
				vals[i] = asFloat(rec[name])
			}
			if err := f.AddNumeric(name, vals); err != nil {
				return nil, apperrors.ExtractError("failed to build CBS frame", err)
			}
			continue
		}
		vals := make([]string, len(records))
		missing := make([]bool, len(records))
		for i, rec := range records {
			v, ok := rec[name]
			if !ok || v == nil {
				missing[i] = true
				continue
			}
			vals[i] = strings.TrimSpace(asString(v))
		}
		if err := f.AddString(name, vals, missing); err != nil {
			return nil, apperrors.ExtractError("failed to build CBS frame", err)
		}
	}
	return f, nil
}

// WriteCSV writes a frame to disk, creating parent directories.
func WriteCSV(f *frame.Frame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ExtractError("failed to create output directory", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return apperrors.ExtractError("failed to create CSV file", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	names := f.ColumnNames()
	if err := w.Write(names); err != nil {
		return apperrors.ExtractError("failed to write CSV header", err)
	}
	row := make([]string, len(names))
	for i := 0; i < f.NumRows(); i++ {
		for j, name := range names {
			col, _ := f.Column(name)
			if col.IsMissing(i) {
				row[j] = ""
			} else if col.Type == frame.TypeNumeric {
				row[j] = strconv.FormatFloat(col.Floats[i], 'g', -1, 64)
			} else {
				row[j] = col.Strings[i]
			}
		}
		if err := w.Write(row); err != nil {
			return apperrors.ExtractError("failed to write CSV row", err)
		}
	}
	w.Flush()
	return w.Error()
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
