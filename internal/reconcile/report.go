package reconcile

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	findingsFile = "findings.csv"
	summaryFile  = "summary.json"
	archiveFile  = "report.zip"
)

type summary struct {
	ReportID    string         `json:"report_id"`
	Asset       string         `json:"asset"`
	CheckedAt   string         `json:"checked_at"`
	Checked     int            `json:"checked"`
	Findings    int            `json:"findings"`
	ByCheck     map[string]int `json:"by_check"`
	GeneratedAt string         `json:"generated_at"`
}

// WriteReport writes the findings CSV and summary JSON into a per-report
// directory under outDir and bundles both into report.zip. It returns the
// archive path.
func WriteReport(outDir string, report Report) (string, error) {
	dir := filepath.Join(outDir, report.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := writeFindings(dir, report.Findings); err != nil {
		return "", err
	}
	if err := writeSummary(dir, report); err != nil {
		return "", err
	}
	return writeArchive(dir)
}

func writeFindings(dir string, findings []Finding) error {
	file, err := os.Create(filepath.Join(dir, findingsFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"check", "subject", "expected", "actual"}); err != nil {
		return err
	}
	for _, finding := range findings {
		if err := writer.Write([]string{finding.Check, finding.Subject, finding.Expected, finding.Actual}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeSummary(dir string, report Report) error {
	file, err := os.Create(filepath.Join(dir, summaryFile))
	if err != nil {
		return err
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary{
		ReportID:    report.ID,
		Asset:       report.Asset,
		CheckedAt:   report.CheckedAt.Format(time.RFC3339),
		Checked:     report.Checked,
		Findings:    len(report.Findings),
		ByCheck:     report.CountByCheck(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeArchive(dir string) (string, error) {
	archivePath := filepath.Join(dir, archiveFile)
	file, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for _, name := range []string{findingsFile, summaryFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		fw, err := zipWriter.Create(name)
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(data); err != nil {
			return "", err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return "", err
	}
	return archivePath, nil
}
