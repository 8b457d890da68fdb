package source

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ruleflow/internal/models"
)

// Labeled bundle format for plain-text source uploads: a concatenation of
// pages, each introduced by a header line
//
//	--- doc:<id> file:<name> page:<n> ---
//
// with the page text running until the next header or end of input.
var headerRe = regexp.MustCompile(`^--- doc:([0-9a-f]+) file:(\S+) page:([1-9][0-9]*) ---$`)

func ParseLabeled(text string) ([]models.SourceDocument, error) {
	byDoc := make(map[string]*models.SourceDocument)
	order := make([]string, 0)

	var cur *models.Page
	var curDoc string
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(cur.Text)
		byDoc[curDoc].Pages = append(byDoc[curDoc].Pages, *cur)
		cur = nil
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		m := headerRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if cur == nil {
				if strings.TrimSpace(line) == "" {
					continue
				}
				return nil, fmt.Errorf("labeled bundle line %d: text before first page header", lineNo)
			}
			cur.Text += line + "\n"
			continue
		}
		flush()
		docID := m[1]
		pageNo, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("labeled bundle line %d: bad page number: %w", lineNo, err)
		}
		if _, ok := byDoc[docID]; !ok {
			byDoc[docID] = &models.SourceDocument{DocID: docID, Filename: m[2]}
			order = append(order, docID)
		}
		curDoc = docID
		cur = &models.Page{DocID: docID, Number: pageNo}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan labeled bundle: %w", err)
	}
	flush()

	if len(order) == 0 {
		return nil, fmt.Errorf("labeled bundle contains no page headers")
	}
	out := make([]models.SourceDocument, 0, len(order))
	for _, id := range order {
		out = append(out, *byDoc[id])
	}
	return out, nil
}
