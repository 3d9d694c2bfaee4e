package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-plants/models"
	"github.com/aluiziolira/go-scrape-plants/parser"
)

// csvHeader is written unquoted; every data field is quoted.
var csvHeader = []string{
	"Name", "Common Names", "Scientific Name", "Family",
	"Toxicity", "Toxic Principles", "Clinical Signs", "URL", "Image URL",
}

const multiValueSeparator = "; "

// CSVWriter appends plant rows to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates (or truncates) filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := bufio.NewWriter(f)
	if _, err := writer.WriteString(strings.Join(csvHeader, ",") + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends plants to the CSV output and flushes them to disk.
func (cw *CSVWriter) Write(plants []*models.Plant) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, plant := range plants {
		if _, err := cw.writer.WriteString(FormatCSVRow(plant) + "\n"); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	if err := cw.writer.Flush(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.Flush(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// FormatCSVRow renders plant as one line of nine quoted fields, each passed through parser.SanitizeField.
func FormatCSVRow(plant *models.Plant) string {
	fields := []string{
		plant.Name,
		strings.Join(plant.CommonNames, multiValueSeparator),
		plant.ScientificName,
		plant.Family,
		strings.Join(plant.Toxicity, multiValueSeparator),
		plant.ToxicPrinciples,
		plant.ClinicalSigns,
		plant.URL,
		plant.ImageURL,
	}
	for i, field := range fields {
		fields[i] = `"` + parser.SanitizeField(field) + `"`
	}
	return strings.Join(fields, ",")
}

// JSONLWriter writes newline-delimited JSON records.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer, truncating any previous content.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends plants in JSONL format.
func (jw *JSONLWriter) Write(plants []*models.Plant) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, plant := range plants {
		if err := jw.encoder.Encode(plant); err != nil {
			return fmt.Errorf("encode jsonl record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSONL file exists. An empty file is valid when nothing was saved.
func (jw *JSONLWriter) Validate() error {
	if _, err := jw.file.Stat(); err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	return nil
}

// WriteJSONSnapshot replaces filename with the full plant list as an indented JSON array.
func WriteJSONSnapshot(filename string, plants []*models.Plant) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	if plants == nil {
		plants = []*models.Plant{}
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create json snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(plants); err != nil {
		tmp.Close()
		return fmt.Errorf("encode json snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close json snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("replace json snapshot: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
