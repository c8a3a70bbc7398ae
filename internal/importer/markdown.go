package importer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/itilprep/itil-exam-backend/internal/model"
)

const (
	headingPrefix  = "### "
	correctPrefix  = "- [x]"
	optionPrefix   = "- [ ]"
	backToTopEntry = "**[⬆ Back to Top]"
)

// Skipped explains why a block in the source file did not become a question.
type Skipped struct {
	Line   int
	Prompt string
	Reason string
}

// ParseResult holds the questions read from a markdown bank, numbered from 1
// in file order, and the blocks that were left out.
type ParseResult struct {
	Questions []model.Question
	Skipped   []Skipped
}

type block struct {
	line    int
	prompt  string
	options []string
	correct int
	done    bool
}

// ParseMarkdown reads a question bank in which every question is a "### "
// heading followed by "- [ ]" options, with "- [x]" marking the correct one.
// Text before the first heading is ignored. A block needs a prompt, at least
// two options and a marked answer; when several options are marked the last
// one wins.
func ParseMarkdown(r io.Reader) (*ParseResult, error) {
	res := &ParseResult{}
	var cur *block

	flush := func() {
		if cur == nil {
			return
		}
		switch {
		case cur.prompt == "":
			res.Skipped = append(res.Skipped, Skipped{Line: cur.line, Reason: "empty prompt"})
		case len(cur.options) < 2:
			res.Skipped = append(res.Skipped, Skipped{Line: cur.line, Prompt: cur.prompt, Reason: "fewer than two options"})
		case cur.correct < 0:
			res.Skipped = append(res.Skipped, Skipped{Line: cur.line, Prompt: cur.prompt, Reason: "no correct answer marked"})
		default:
			res.Questions = append(res.Questions, model.Question{
				ID:            len(res.Questions) + 1,
				Prompt:        cur.prompt,
				Options:       cur.options,
				CorrectAnswer: cur.correct,
				Category:      Categorize(cur.prompt),
			})
		}
		cur = nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		if strings.HasPrefix(line, headingPrefix) {
			flush()
			cur = &block{line: lineNo, prompt: strings.TrimSpace(line[len(headingPrefix):]), correct: -1}
			continue
		}
		if cur == nil || cur.done {
			continue
		}

		switch {
		case strings.HasPrefix(line, correctPrefix):
			cur.options = append(cur.options, strings.TrimSpace(line[len(correctPrefix):]))
			cur.correct = len(cur.options) - 1
		case strings.HasPrefix(line, optionPrefix):
			cur.options = append(cur.options, strings.TrimSpace(line[len(optionPrefix):]))
		case strings.HasPrefix(line, backToTopEntry):
			cur.done = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	flush()

	return res, nil
}
