/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package subtitle implements a small SRT codec plus the timeline math
// used when cutting removed lines out of a recording.
//
// Indices are never resequenced: a cue keeps the index it was parsed
// with, because downstream artifacts reference lines by that id.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dimchansky/utfbom"
)

// RemoveToken marks a line the auto-editor (or the user) decided to cut.
const RemoveToken = "<<REMOVE>>"

// Cue is one SRT subtitle block. Start and End are seconds.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

var timestampPattern = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})$`)

func parseTimestamp(raw string) (float64, error) {
	m := timestampPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid srt timestamp %q", raw)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	millis, _ := strconv.Atoi(m[4] + strings.Repeat("0", 3-len(m[4])))
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(millis)/1000, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	m := millis % 3600000 / 60000
	s := millis % 60000 / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Parse reads SRT text into cues. Blocks without a parsable index get a
// sequential one; malformed timing lines fail the whole parse.
func Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(utfbom.SkipOnly(r))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var cues []Cue
	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		cue, err := parseBlock(block, len(cues)+1)
		block = block[:0]
		if err != nil {
			return err
		}
		if cue != nil {
			cues = append(cues, *cue)
		}
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}

func parseBlock(lines []string, fallbackIndex int) (*Cue, error) {
	pos := 0
	index := fallbackIndex
	if parsed, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		index = parsed
		pos = 1
	}
	if pos >= len(lines) {
		return nil, nil
	}

	timing := strings.SplitN(lines[pos], "-->", 2)
	if len(timing) != 2 {
		return nil, fmt.Errorf("invalid srt timing line %q", lines[pos])
	}
	start, err := parseTimestamp(timing[0])
	if err != nil {
		return nil, err
	}
	end, err := parseTimestamp(timing[1])
	if err != nil {
		return nil, err
	}

	return &Cue{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.TrimSpace(strings.Join(lines[pos+1:], "\n")),
	}, nil
}

// ParseFile parses an SRT file, tolerating a UTF-8 BOM.
func ParseFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cues, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cues, nil
}

// Compose renders cues back to SRT text, keeping their indices as-is.
func Compose(cues []Cue) string {
	var b strings.Builder
	for _, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue.Index, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text)
	}
	return b.String()
}

// WriteFile composes cues and writes them out, creating parent dirs.
func WriteFile(path string, cues []Cue) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(Compose(cues)), 0o644)
}
