package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/natefinch/atomic"
)

// ExportedTemplate is the JSON shape of one template in an export document.
type ExportedTemplate struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	UpdatedAt int64  `json:"updated_at"`
}

// Export writes every stored template to w as a JSON array, ordered by name.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	infos, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list templates for export: %w", err)
	}

	exported := make([]ExportedTemplate, 0, len(infos))
	for _, info := range infos {
		source, err := s.Get(ctx, info.Name)
		if err != nil {
			return fmt.Errorf("could not read template '%s' for export: %w", info.Name, err)
		}
		exported = append(exported, ExportedTemplate{
			Name:      info.Name,
			Source:    source,
			UpdatedAt: info.UpdatedAt.Unix(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exported); err != nil {
		return fmt.Errorf("could not encode export: %w", err)
	}
	s.logger.InfoContext(ctx, "Templates exported", "count", len(exported))
	return nil
}

// ExportFile writes the export document to path atomically, so a crash
// mid-write never leaves a truncated file.
func (s *Store) ExportFile(ctx context.Context, path string) error {
	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("could not write export file: %w", err)
	}
	return nil
}

// Import reads a JSON export document from rd and saves every template in it,
// replacing entries that share a name. Templates keep the timestamps recorded
// in the document when present.
func (s *Store) Import(ctx context.Context, rd io.Reader) (int, error) {
	var exported []ExportedTemplate
	if err := json.NewDecoder(rd).Decode(&exported); err != nil {
		return 0, fmt.Errorf("could not decode import: %w", err)
	}

	for _, t := range exported {
		if t.Name == "" {
			return 0, fmt.Errorf("import entry has no name")
		}
		updated := t.UpdatedAt
		if updated == 0 {
			updated = time.Now().Unix()
		}
		if _, err := s.stmtSave.ExecContext(ctx, t.Name, t.Source, updated); err != nil {
			return 0, fmt.Errorf("could not import template '%s': %w", t.Name, err)
		}
	}
	s.logger.InfoContext(ctx, "Templates imported", "count", len(exported))
	return len(exported), nil
}
