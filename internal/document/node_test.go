package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	docs := []string{
		"",
		DefaultDocument,
		Construct(`<mj-text font-size="20px">Hi <b>there</b></mj-text><mj-image src="a.png" />`),
		`<mj-text title='single "quoted"'>x</mj-text><!-- note -->`,
		`<mj-text>partial <mj-button href="https://exa`,
		"<mj-section>\r\n<mj-column>\r\n",
		"trailing <",
	}
	for _, doc := range docs {
		assert.Equal(t, doc, Serialize(Parse(doc)), "doc=%q", doc)
	}
}

func TestParse_Nodes(t *testing.T) {
	nodes := Parse(`<MJ-Text Color="red">Hi</MJ-Text><mj-image src="x" />`)
	require.Len(t, nodes, 4)

	assert.Equal(t, NodeStartTag, nodes[0].Kind)
	assert.Equal(t, "mj-text", nodes[0].Name)
	color, ok := nodes[0].Attr("color")
	assert.True(t, ok)
	assert.Equal(t, "red", color)
	assert.Equal(t, `<MJ-Text Color="red">`, nodes[0].Raw)

	assert.Equal(t, NodeText, nodes[1].Kind)
	assert.Equal(t, NodeEndTag, nodes[2].Kind)
	assert.Equal(t, NodeSelfClosing, nodes[3].Kind)
}

func TestParse_IncompleteTrailingTag(t *testing.T) {
	nodes := Parse(`<mj-text>ok</mj-text><mj-button href="https://exa`)
	last := nodes[len(nodes)-1]
	assert.Equal(t, NodeText, last.Kind)
	assert.Equal(t, `<mj-button href="https://exa`, last.Raw)
}

func TestNode_SetAttr(t *testing.T) {
	nodes := Parse(`<mj-text color="red">`)
	nodes[0].SetAttr("id", "text-1")
	assert.Equal(t, `<mj-text color="red" id="text-1">`, nodes[0].String())

	nodes = Parse(`<mj-image src="a.png"  />`)
	nodes[0].SetAttr("id", "image-1")
	assert.Equal(t, `<mj-image src="a.png" id="image-1"  />`, nodes[0].String())

	nodes = Parse(`<mj-text css-class="big">`)
	nodes[0].SetAttr("css-class", `big "x"`)
	assert.Equal(t, `<mj-text css-class="big &#34;x&#34;">`, nodes[0].String())
}
