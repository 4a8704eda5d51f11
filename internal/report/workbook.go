// Package report exports learning path progress as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-learnpath/internal/store"
)

const (
	topicsSheet  = "Topics"
	summarySheet = "Summary"
)

var topicHeader = []any{"Topic", "Initial Mastery", "Current Mastery", "Modules Complete", "Estimated Hours", "Completed Modules", "Subtopics"}

// WritePathWorkbook writes an xlsx workbook with one row per topic of the
// path and a summary sheet. completed maps topic IDs to completed module IDs.
func WritePathWorkbook(w io.Writer, path store.Path, completed map[string][]int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", topicsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(topicsSheet, "A1", &topicHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	if err := f.SetRowStyle(topicsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, t := range path.Topics {
		done := completed[t.TopicID]
		subtopics := make([]string, 0, len(t.Subtopics))
		for _, s := range t.Subtopics {
			subtopics = append(subtopics, s.ID)
		}
		row := []any{
			t.TopicID,
			t.Mastery,
			store.TopicMastery(t.Mastery, len(done)),
			fmt.Sprintf("%d/%d", len(done), store.ModulesPerTopic),
			t.EstimatedHours,
			joinInts(done),
			strings.Join(subtopics, ", "),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(topicsSheet, cell, &row); err != nil {
			return fmt.Errorf("writing topic %s: %w", t.TopicID, err)
		}
	}
	if err := f.SetColWidth(topicsSheet, "A", "A", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(topicsSheet, "F", "G", 36); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	summary := [][]any{
		{"Target Role", path.Form.TargetJobTitle},
		{"Target Seniority", path.Form.TargetSeniority},
		{"Target Company", path.Form.TargetCompany},
		{"Global Readiness", path.GlobalReadiness},
		{"Path Mastery", store.PathMastery(path.Topics, completed)},
		{"Created", path.CreatedAt.Format("2006-01-02")},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, "A"+strconv.Itoa(i+1), &row); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 20); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
