package notionrules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNotion struct {
	MockQueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	requests              []*notionapi.DatabaseQueryRequest
}

func (m *mockNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	m.requests = append(m.requests, req)
	return m.MockQueryDatabaseFunc(ctx, databaseID, req)
}

func title(s string) *notionapi.TitleProperty {
	return &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: s}}}
}

func sel(s string) *notionapi.SelectProperty {
	return &notionapi.SelectProperty{Select: notionapi.Option{Name: s}}
}

func rulePage(id, pattern string, priority float64) notionapi.Page {
	return notionapi.Page{
		ID:          notionapi.ObjectID(id),
		CreatedTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Properties: notionapi.Properties{
			PropPattern:   title(pattern),
			PropMatchType: sel("Starts With"),
			PropSearchIn:  sel("both"),
			PropCategory:  sel("Groceries"),
			PropPriority:  &notionapi.NumberProperty{Number: priority},
			PropActive:    &notionapi.CheckboxProperty{Checkbox: true},
		},
	}
}

func TestPageToRule(t *testing.T) {
	page := rulePage("page-1", "tesco", 7)
	page.Properties[PropSubcategory] = &notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{PlainText: "Super"}, {PlainText: "market"}},
	}

	r := PageToRule(page)
	assert.Equal(t, "page-1", r.ID)
	assert.Equal(t, "tesco", r.Pattern)
	assert.Equal(t, domain.MatchStartsWith, r.MatchType)
	assert.Equal(t, domain.ScopeBoth, r.Scope)
	assert.Equal(t, "Groceries", r.Category)
	assert.Equal(t, "Supermarket", r.Subcategory)
	assert.Equal(t, 7, r.Priority)
	assert.True(t, r.Active)
}

func TestPageToRule_MissingProperties(t *testing.T) {
	r := PageToRule(notionapi.Page{ID: "empty"})
	assert.Empty(t, r.Pattern)
	assert.False(t, r.MatchType.Valid())
	assert.False(t, r.Scope.Valid())
	assert.False(t, r.Active)
}

func TestListActiveRules_Paginates(t *testing.T) {
	notion := &mockNotion{
		MockQueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			assert.Equal(t, "rules-db", databaseID)
			if req.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{rulePage("a", "one", 1)},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			archived := rulePage("c", "gone", 3)
			archived.Archived = true
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{rulePage("b", "two", 2), archived},
			}, nil
		},
	}

	rules, err := NewRuleStore(notion, "rules-db").ListActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].ID)
	assert.Equal(t, "b", rules[1].ID)

	require.Len(t, notion.requests, 2)
	first := notion.requests[0]
	filter, ok := first.Filter.(*notionapi.PropertyFilter)
	require.True(t, ok)
	assert.Equal(t, PropActive, filter.Property)
	require.NotNil(t, filter.Checkbox)
	assert.True(t, filter.Checkbox.Equals)
	require.Len(t, first.Sorts, 1)
	assert.Equal(t, notionapi.TimestampCreated, first.Sorts[0].Timestamp)
	assert.Equal(t, notionapi.SortOrderASC, first.Sorts[0].Direction)
	assert.Equal(t, notionapi.Cursor("next"), notion.requests[1].StartCursor)
}

func TestListActiveRules_QueryError(t *testing.T) {
	notion := &mockNotion{
		MockQueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("rate limited")
		},
	}

	_, err := NewRuleStore(notion, "rules-db").ListActiveRules(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
