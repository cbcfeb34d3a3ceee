package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHarvestReferences(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int64
	}{
		{
			name: "legacy shortcode",
			body: `<p>before</p>[gallery columns="3" ids="12, 7,3"]`,
			want: []int64{12, 7, 3},
		},
		{
			name: "gallery block",
			body: `<!-- wp:gallery {"ids":[4,5],"linkTo":"none"} --><figure></figure><!-- /wp:gallery -->`,
			want: []int64{4, 5},
		},
		{
			name: "image block and markup",
			body: `<!-- wp:image {"id":9,"sizeSlug":"large"} --><figure><img src="x.jpg" class="wp-image-9" data-id="9"/></figure><!-- /wp:image -->`,
			want: []int64{9},
		},
		{
			name: "mixed shapes keep first-appearance order",
			body: `<img class="wp-image-30"/>[gallery ids="10,20"]<img data-id="10">`,
			want: []int64{30, 10, 20},
		},
		{
			name: "malformed block json is ignored",
			body: `<!-- wp:gallery {"ids":[1,2} -->`,
			want: []int64{},
		},
		{
			name: "no references",
			body: `<p>plain</p>`,
			want: []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HarvestReferences(tt.body)
			assert.Equal(t, tt.want, got)
			// idempotent
			assert.Equal(t, got, HarvestReferences(tt.body))
		})
	}
}

func TestRewriteBody_PartialMapping(t *testing.T) {
	body := `[gallery ids="10,20,30"]` +
		`<!-- wp:gallery {"ids":[10,20,30],"columns":3} -->` +
		`<img class="wp-image-10" data-id="10"><img class="wp-image-20" data-id="20"><img class="wp-image-30" data-id="30">` +
		`<!-- /wp:gallery -->`

	out, unmapped := RewriteBody(body, map[int64]int64{10: 110, 30: 330})

	assert.Equal(t, []int64{20}, unmapped)
	assert.Contains(t, out, `[gallery ids="110,20,330"]`)
	assert.Contains(t, out, `{"ids":[110,20,330],"columns":3}`)
	assert.Contains(t, out, `class="wp-image-110" data-id="110"`)
	assert.Contains(t, out, `class="wp-image-20" data-id="20"`)
	assert.Contains(t, out, `class="wp-image-330" data-id="330"`)
	assert.Equal(t, []int64{110, 20, 330}, HarvestReferences(out))
}

func TestRewriteBody_ImageBlockID(t *testing.T) {
	out, unmapped := RewriteBody(`<!-- wp:image {"id":3,"sizeSlug":"large"} -->`, map[int64]int64{3: 8})
	assert.Empty(t, unmapped)
	assert.Equal(t, `<!-- wp:image {"id":8,"sizeSlug":"large"} -->`, out)
}

func TestRewriteBody_DoesNotChainMappings(t *testing.T) {
	out, _ := RewriteBody(`<img class="wp-image-1" data-id="2">`, map[int64]int64{1: 2, 2: 3})
	assert.Equal(t, `<img class="wp-image-2" data-id="3">`, out)
}

func TestReplaceURLs(t *testing.T) {
	body := `<img src="https://hub.example/media/1"><img src="https://hub.example/media/10">`
	out := ReplaceURLs(body, map[string]string{
		"https://hub.example/media/1":  "https://spoke.example/media/7",
		"https://hub.example/media/10": "https://spoke.example/media/8",
	})
	assert.Equal(t, `<img src="https://spoke.example/media/7"><img src="https://spoke.example/media/8">`, out)

	assert.Equal(t, body, ReplaceURLs(body, nil))
}
