package clash

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// Chooser picks one of several candidate names. ok is false when the user
// declined to choose.
type Chooser interface {
	SelectOne(candidates []string) (index int, ok bool)
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(candidates []string) (int, bool)

// SelectOne calls f.
func (f ChooserFunc) SelectOne(candidates []string) (int, bool) { return f(candidates) }

// SelectTest picks the test to process. A single test is returned without
// asking; several are offered to chooser.
func SelectTest(tests []domain.ClashTest, chooser Chooser) (domain.ClashTest, error) {
	switch len(tests) {
	case 0:
		return domain.ClashTest{}, domain.ErrNoClashData
	case 1:
		return tests[0], nil
	}
	if chooser == nil {
		return domain.ClashTest{}, domain.ErrNoTestSelected
	}
	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.DisplayName
	}
	i, ok := chooser.SelectOne(names)
	if !ok || i < 0 || i >= len(tests) {
		return domain.ClashTest{}, domain.ErrNoTestSelected
	}
	return tests[i], nil
}

// ByName chooses the candidate with exactly this name, falling back to a
// case-insensitive match.
func ByName(name string) Chooser {
	return ChooserFunc(func(candidates []string) (int, bool) {
		for i, c := range candidates {
			if c == name {
				return i, true
			}
		}
		for i, c := range candidates {
			if strings.EqualFold(c, name) {
				return i, true
			}
		}
		return -1, false
	})
}

// FindTest returns the test named name using ByName matching.
func FindTest(tests []domain.ClashTest, name string) (domain.ClashTest, error) {
	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.DisplayName
	}
	i, ok := ByName(name).SelectOne(names)
	if !ok {
		return domain.ClashTest{}, domain.NewEngineError(domain.ErrTestNotFound.Code, fmt.Sprintf("%s: %q", domain.ErrTestNotFound.Message, name))
	}
	return tests[i], nil
}

// Prompt asks on a terminal. An empty answer, EOF or an answer that is not a
// listed number declines.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// SelectOne prints the numbered candidates and reads one line.
func (p Prompt) SelectOne(candidates []string) (int, bool) {
	fmt.Fprintln(p.Out, "Select a clash test:")
	for i, c := range candidates {
		fmt.Fprintf(p.Out, "  %d) %s\n", i+1, c)
	}
	fmt.Fprint(p.Out, "> ")

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return -1, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(candidates) {
		return -1, false
	}
	return n - 1, true
}
