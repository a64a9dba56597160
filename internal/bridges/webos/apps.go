package webos

import (
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

// App is one launchable application.
type App struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// AppTable maps titles to ids. It is built once per session and never
// modified.
type AppTable struct {
	byTitle map[string]string
	byID    map[string]string
	titles  []string
}

// NewAppTable builds a table. When two apps share a title the first wins.
func NewAppTable(apps []App) *AppTable {
	t := &AppTable{
		byTitle: make(map[string]string, len(apps)),
		byID:    make(map[string]string, len(apps)),
	}
	for _, a := range apps {
		if a.ID == "" || a.Title == "" {
			continue
		}
		if _, dup := t.byTitle[a.Title]; !dup {
			t.byTitle[a.Title] = a.ID
			t.titles = append(t.titles, a.Title)
		}
		if _, dup := t.byID[a.ID]; !dup {
			t.byID[a.ID] = a.Title
		}
	}
	sort.Strings(t.titles)
	return t
}

// parseAppTable reads a listLaunchPoints response.
func parseAppTable(resp transport.Payload) (*AppTable, error) {
	raw, ok := resp["launchPoints"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: no launchPoints", ErrUnexpectedResponse)
	}
	apps := make([]App, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := entry["id"].(string)
		title, _ := entry["title"].(string)
		apps = append(apps, App{ID: id, Title: title})
	}
	return NewAppTable(apps), nil
}

// Lookup returns the id for title.
func (t *AppTable) Lookup(title string) (string, error) {
	id, ok := t.byTitle[title]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrAppNotFound, title)
	}
	return id, nil
}

// Title returns the display title for id, or id itself when unknown.
func (t *AppTable) Title(id string) string {
	if title, ok := t.byID[id]; ok {
		return title
	}
	return id
}

// Titles returns every title in sorted order.
func (t *AppTable) Titles() []string {
	return append([]string(nil), t.titles...)
}

// Len returns the number of distinct titles.
func (t *AppTable) Len() int {
	return len(t.titles)
}
