// Package dataset reads dataset metadata and prepares descriptions for
// prompting.
//
// Metadata files hold blank-line separated blocks of three lines:
//
//	[rainfall/monthly.csv]
//	Name: Monthly rainfall
//	Description: Rainfall totals per station and month.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/colannotate/internal/core"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

// ErrMalformedMeta is returned for metadata blocks that do not follow the
// three-line format.
var ErrMalformedMeta = errors.New("malformed metadata block")

// DefaultShortenOver is the description length above which descriptions
// are shortened before annotation.
const DefaultShortenOver = 1000

// Meta describes one dataset.
type Meta struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Dataset returns the prompt context for the dataset.
func (m Meta) Dataset() core.Dataset {
	return core.Dataset{Name: m.Name, Description: m.Description}
}

// ParseMetaText parses metadata blocks. Bracketed paths are resolved
// relative to baseDir.
func ParseMetaText(text, baseDir string) ([]Meta, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []Meta
	for i, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) != 3 {
			return nil, fmt.Errorf("%w %d: want 3 lines, got %d", ErrMalformedMeta, i+1, len(lines))
		}

		path := strings.TrimSpace(lines[0])
		if !strings.HasPrefix(path, "[") || !strings.HasSuffix(path, "]") {
			return nil, fmt.Errorf("%w %d: path %q not in brackets", ErrMalformedMeta, i+1, path)
		}
		name, ok := strings.CutPrefix(strings.TrimSpace(lines[1]), "Name:")
		if !ok {
			return nil, fmt.Errorf("%w %d: missing Name:", ErrMalformedMeta, i+1)
		}
		desc, ok := strings.CutPrefix(strings.TrimSpace(lines[2]), "Description:")
		if !ok {
			return nil, fmt.Errorf("%w %d: missing Description:", ErrMalformedMeta, i+1)
		}

		out = append(out, Meta{
			Path:        filepath.Join(baseDir, path[1:len(path)-1]),
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(desc),
		})
	}
	return out, nil
}

// LoadMetaFile reads a metadata file; paths resolve against baseDir.
func LoadMetaFile(path, baseDir string) ([]Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	return ParseMetaText(string(data), baseDir)
}

// ShortenDescription asks the oracle once to strip contact details,
// bibliographies, URLs and similar noise from a description. The reply is
// used verbatim as free text.
func ShortenDescription(ctx context.Context, o oracle.Oracle, timeout time.Duration, m Meta) (string, error) {
	question := fmt.Sprintf(`I have a dataset called "%s" with the following description:
"""
%s
"""
I would like to ensure that it is just a simple description purely about the data without any other superfluous information. Things to remove include contact info, bibliographies, URLs, etc. If there is a lot of superfluous information, could you pare it down to just the key details? Output only the new description without any other comments. If there are no superfluous details, output only the original unmodified description.`,
		m.Name, m.Description)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reply, err := o.Ask(ctx, oracle.DefaultSystemPrompt, []oracle.Message{oracle.User(question)})
	if err != nil {
		return "", fmt.Errorf("shorten description of %q: %w", m.Name, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return m.Description, nil
	}
	return reply, nil
}

// Prepare shortens m's description when it is longer than limit.
// A zero limit uses DefaultShortenOver; a negative one disables shortening.
func Prepare(ctx context.Context, o oracle.Oracle, timeout time.Duration, m Meta, limit int) (Meta, error) {
	if limit == 0 {
		limit = DefaultShortenOver
	}
	if limit < 0 || len(m.Description) <= limit {
		return m, nil
	}
	desc, err := ShortenDescription(ctx, o, timeout, m)
	if err != nil {
		return m, err
	}
	m.Description = desc
	return m, nil
}
