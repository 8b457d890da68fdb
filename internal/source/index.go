package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ruleflow/internal/models"
)

// ErrDuplicatePage is returned only when two distinct texts are registered
// under one (doc, page) key. Idempotent re-registration of identical content
// is tolerated.
var ErrDuplicatePage = errors.New("duplicate page with conflicting content")

type Location struct {
	DocID string `json:"doc_id"`
	Page  int    `json:"page"`
}

// Index is an immutable lookup over the source pages supplied to one
// generation job. It is rebuilt per job, never mutated in place.
type Index struct {
	pages map[string]map[int]string
	docs  []string
}

func Build(documents []models.SourceDocument) (*Index, error) {
	idx := &Index{pages: make(map[string]map[int]string)}
	for _, doc := range documents {
		for _, p := range doc.Pages {
			byPage, ok := idx.pages[doc.DocID]
			if !ok {
				byPage = make(map[int]string)
				idx.pages[doc.DocID] = byPage
			}
			existing, seen := byPage[p.Number]
			if seen {
				if strings.TrimSpace(existing) == strings.TrimSpace(p.Text) {
					continue
				}
				return nil, fmt.Errorf("%w: %s page %d", ErrDuplicatePage, doc.DocID, p.Number)
			}
			byPage[p.Number] = p.Text
		}
	}
	idx.docs = make([]string, 0, len(idx.pages))
	for id := range idx.pages {
		idx.docs = append(idx.docs, id)
	}
	sort.Strings(idx.docs)
	return idx, nil
}

func (i *Index) Lookup(docID string, page int) (string, bool) {
	byPage, ok := i.pages[docID]
	if !ok {
		return "", false
	}
	text, ok := byPage[page]
	return text, ok
}

// NextPage returns the text of page+1 in the same document, for the
// page-boundary overflow pass.
func (i *Index) NextPage(docID string, page int) (string, bool) {
	return i.Lookup(docID, page+1)
}

func (i *Index) Docs() []string {
	return i.docs
}

func (i *Index) PageNumbers(docID string) []int {
	byPage, ok := i.pages[docID]
	if !ok {
		return nil
	}
	nums := make([]int, 0, len(byPage))
	for n := range byPage {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// FindAll performs a full scan for exact substring occurrence across every
// registered page, in deterministic (doc, page) order.
func (i *Index) FindAll(anchor string) []Location {
	if anchor == "" {
		return nil
	}
	out := make([]Location, 0)
	for _, docID := range i.docs {
		for _, n := range i.PageNumbers(docID) {
			if strings.Contains(i.pages[docID][n], anchor) {
				out = append(out, Location{DocID: docID, Page: n})
			}
		}
	}
	return out
}
