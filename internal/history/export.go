package history

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// exportImage is the image metadata shape shared by all export formats.
// Binary image data is never embedded in exports.
type exportImage struct {
	ImagePath string `json:"image_path"`
	ImageName string `json:"image_name"`
	CreatedAt string `json:"created_at"`
}

type exportRecord struct {
	ConversationRecord
	Images []exportImage `json:"images,omitempty"`
}

// csvHeader fixes the column order for CSV exports.
var csvHeader = []string{
	"session_id", "isolation_key", "client_name", "worker",
	"project_name", "project_directory", "ai_prompt", "user_feedback",
	"command_logs", "created_at", "updated_at",
}

// ExportJSON writes the record set as a JSON array, each record carrying
// its image metadata. The file appears atomically: content is written to
// a temp path in the destination directory and renamed on success.
func (m *Manager) ExportJSON(records []ConversationRecord, path string) error {
	out := make([]exportRecord, 0, len(records))
	for _, rec := range records {
		images, err := m.exportImages(rec)
		if err != nil {
			return err
		}
		out = append(out, exportRecord{ConversationRecord: rec, Images: images})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal export: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// ExportCSV writes the record set with a fixed column order. Missing
// optional fields render as empty strings.
func (m *Manager) ExportCSV(records []ConversationRecord, path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("history: write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.SessionID, rec.IsolationKey, rec.ClientName, rec.Worker,
			rec.ProjectName, rec.ProjectDirectory, rec.AIPrompt,
			rec.UserFeedback, rec.CommandLogs, rec.CreatedAt, rec.UpdatedAt,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("history: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("history: flush csv: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// ExportMarkdown writes one "##" section per record with labeled fields,
// fenced code blocks for prompt/feedback/logs, an image-metadata bullet
// list, and horizontal-rule separators.
func (m *Manager) ExportMarkdown(records []ConversationRecord, path string) error {
	var b strings.Builder

	b.WriteString("# Conversation History Export\n\n")
	fmt.Fprintf(&b, "Exported: %s\n", Now())
	fmt.Fprintf(&b, "Total conversations: %d\n\n", len(records))

	for i, rec := range records {
		fmt.Fprintf(&b, "## Conversation %d\n\n", i+1)
		fmt.Fprintf(&b, "**Session ID**: %s\n", rec.SessionID)
		fmt.Fprintf(&b, "**Client**: %s\n", rec.ClientName)
		fmt.Fprintf(&b, "**Worker**: %s\n", rec.Worker)
		fmt.Fprintf(&b, "**Project**: %s\n", rec.ProjectName)
		fmt.Fprintf(&b, "**Project Path**: %s\n", rec.ProjectDirectory)
		fmt.Fprintf(&b, "**Created**: %s\n\n", rec.CreatedAt)

		b.WriteString("### AI Prompt\n\n")
		writeFenced(&b, rec.AIPrompt)

		b.WriteString("### User Feedback\n\n")
		feedback := rec.UserFeedback
		if feedback == "" {
			feedback = "No feedback provided"
		}
		writeFenced(&b, feedback)

		if rec.CommandLogs != "" {
			b.WriteString("### Command Logs\n\n")
			writeFenced(&b, rec.CommandLogs)
		}

		images, err := m.exportImages(rec)
		if err != nil {
			return err
		}
		if len(images) > 0 {
			b.WriteString("### Attached Images\n\n")
			for _, img := range images {
				fmt.Fprintf(&b, "- %s (%s)\n", img.ImageName, img.ImagePath)
			}
			b.WriteString("\n")
		}

		b.WriteString("---\n\n")
	}

	return writeFileAtomic(path, []byte(b.String()))
}

func (m *Manager) exportImages(rec ConversationRecord) ([]exportImage, error) {
	images, err := m.store.Images(rec.ID, rec.IsolationKey)
	if err != nil {
		return nil, fmt.Errorf("history: export images for %s: %w", rec.SessionID, err)
	}
	out := make([]exportImage, 0, len(images))
	for _, img := range images {
		out = append(out, exportImage{
			ImagePath: img.ImagePath,
			ImageName: img.ImageName,
			CreatedAt: img.CreatedAt,
		})
	}
	return out, nil
}

func writeFenced(b *strings.Builder, content string) {
	b.WriteString("```\n")
	b.WriteString(content)
	b.WriteString("\n```\n\n")
}

// writeFileAtomic writes data to a temp file next to path and renames
// it into place, so a failed export never leaves a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("history: create export file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("history: write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("history: close export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("history: finalize export: %w", err)
	}
	return nil
}
