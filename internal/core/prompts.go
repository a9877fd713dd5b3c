package core

import (
	"fmt"
	"strings"
)

// Unsure is the escape answer offered to the oracle on every question.
const Unsure = "UNSURE"

// Dataset is the descriptive context shown with every question.
type Dataset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Column is a column name plus the leading values used as evidence.
type Column struct {
	Name   string
	Values []string
}

// formatValues renders sample values one per line with a row index.
func formatValues(values []string) string {
	if len(values) == 0 {
		return "(no values)"
	}
	width := len(fmt.Sprint(len(values) - 1))
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = fmt.Sprintf("%-*d    %s", width, i, v)
	}
	return strings.Join(lines, "\n")
}

// columnPreamble introduces the dataset and the column under discussion.
func columnPreamble(ds Dataset, col Column) string {
	return fmt.Sprintf(`I have a dataset called "%s" with the following description:
"%s"
I have a column called "%s" with the following values (first %d rows):
%s`, ds.Name, ds.Description, col.Name, len(col.Values), formatValues(col.Values))
}

// listOptions renders options as "A, B, C".
func listOptions(options []string) string {
	return strings.Join(options, ", ")
}

const answerOnly = "Write your answer without any other comments."

func selectOneInstruction(options []string) string {
	return fmt.Sprintf("Please select one of the following options: %s, or %s. %s",
		listOptions(options), Unsure, answerOnly)
}

// Clarification prompts for each classification use.
const (
	promptRole = "I need to determine if this column contains geographic information, date/time information, or feature information. " +
		"If it is not obviously geo or time related, then it is probably a feature column."
	promptDateType = "The column has been identified as containing date/time information.\n" +
		"I need to identify the type of date/time information it contains."
	promptGeoType = "The column has been identified as containing geographic information.\n" +
		"I need to identify the type of geographic information it contains."
	promptFeatureType = "The column has been identified as containing feature information.\n" +
		"I need to identify the type of feature information it contains."
	promptCoordOrder = "The column has been identified as containing combined coordinate pairs.\n" +
		"I need to know whether each value lists latitude first (LATLON) or longitude first (LONLAT)."
)
