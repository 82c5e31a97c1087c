package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		expr string
		want ContentSelector
	}{
		{"page:42", ContentSelector{Kind: KindPage, ID: "42"}},
		{"article:1,2, 3", ContentSelector{Kind: KindArticle, IDs: []string{"1", "2", "3"}}},
		{"article:category=news", ContentSelector{Kind: KindArticle, Category: "news"}},
		{"config:*", ContentSelector{Kind: KindConfig, All: true}},
		{"recipe:abc", ContentSelector{Kind: "recipe", ID: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseSelector(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSelector_Invalid(t *testing.T) {
	for _, expr := range []string{"", "page", "page:", ":42", "pa ge:1"} {
		_, err := ParseSelector(expr)
		assert.ErrorIs(t, err, ErrInvalidInput, expr)
	}
}

func TestContentSelector_String(t *testing.T) {
	for _, expr := range []string{"page:42", "article:1,2", "article:category=news", "config:*"} {
		sel, err := ParseSelector(expr)
		require.NoError(t, err)
		assert.Equal(t, expr, sel.String())
	}
}

func TestContentUnit_Key(t *testing.T) {
	u := ContentUnit{Kind: KindPage, SourceSiteID: "a", SourceID: "5"}
	assert.Equal(t, UnitKey("page:a:5"), u.Key())

	ref := ExternalRef{Kind: KindPage, SourceSiteID: "a", SourceID: "5", TargetSiteID: "b"}
	assert.Equal(t, u.Key(), ref.UnitKey())
}

func TestPayload_Clone(t *testing.T) {
	p := Payload{"title": "Hello"}
	c := p.Clone()
	c["title"] = "Changed"
	assert.Equal(t, "Hello", p["title"])

	var empty Payload
	assert.Nil(t, empty.Clone())
}

func TestSiteDescriptor_Accepts(t *testing.T) {
	open := SiteDescriptor{ID: "a", Driver: "memory"}
	assert.True(t, open.Accepts(KindArticle))

	pagesOnly := SiteDescriptor{ID: "b", Driver: "memory", Kinds: []ContentKind{KindPage}}
	assert.True(t, pagesOnly.Accepts(KindPage))
	assert.False(t, pagesOnly.Accepts(KindConfig))

	assert.NoError(t, pagesOnly.Validate())
	assert.ErrorIs(t, SiteDescriptor{Driver: "memory"}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, SiteDescriptor{ID: "x"}.Validate(), ErrInvalidInput)
}
