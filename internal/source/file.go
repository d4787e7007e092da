package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
)

const maxLineBytes = 1 << 20

// File reads one JSON object per line.
type File struct {
	name   string
	kind   lead.Source
	path   string
	logger *zap.Logger
}

func (f *File) Name() string      { return f.name }
func (f *File) Kind() lead.Source { return f.kind }

func (f *File) Fetch(ctx context.Context, since time.Time) ([]normalizer.RawPayload, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	defer fh.Close()

	var items []normalizer.RawPayload
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var item normalizer.RawPayload
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			f.logger.Warn("skipping unreadable line", zap.String("source", f.name), zap.Int("line", line), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	return after(items, since), nil
}
