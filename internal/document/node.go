package document

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// NodeKind 节点类型
type NodeKind int

const (
	NodeText        NodeKind = iota // 文本（含不完整的尾部标记）
	NodeStartTag                    // 开始标签
	NodeEndTag                      // 结束标签
	NodeSelfClosing                 // 自闭合标签
	NodeComment                     // 注释
	NodeDoctype                     // 文档类型声明
)

// Attr 标签属性
type Attr struct {
	Key string
	Val string
}

// Node 文档中的一个记号
type Node struct {
	Kind  NodeKind
	Name  string // 小写标签名
	Attrs []Attr
	Raw   string // 原始文本

	added   []Attr // 追加的属性
	rebuild bool   // 已有属性被修改，需要整体重建
}

// IsTag 是否为开始或自闭合标签
func (n *Node) IsTag() bool {
	return n.Kind == NodeStartTag || n.Kind == NodeSelfClosing
}

// Attr 读取属性
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr 设置属性，已存在则覆盖
func (n *Node) SetAttr(key, val string) {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Val = val
			n.rebuild = true
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Val: val})
	n.added = append(n.added, Attr{Key: key, Val: val})
}

// String 序列化节点；未修改的节点原样输出
func (n *Node) String() string {
	switch {
	case n.rebuild:
		return n.build()
	case len(n.added) > 0:
		return n.appendAdded()
	default:
		return n.Raw
	}
}

// appendAdded 在原始标签的结尾前插入新增属性
func (n *Node) appendAdded() string {
	body := strings.TrimSuffix(n.Raw, ">")
	closing := ">"
	if strings.HasSuffix(body, "/") {
		body = strings.TrimSuffix(body, "/")
		closing = "/>"
	}
	trimmed := strings.TrimRight(body, " \t\r\n")
	ws := body[len(trimmed):]

	var sb strings.Builder
	sb.WriteString(trimmed)
	writeAttrs(&sb, n.added)
	sb.WriteString(ws)
	sb.WriteString(closing)
	return sb.String()
}

// build 按属性列表重建标签
func (n *Node) build() string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(n.Name)
	writeAttrs(&sb, n.Attrs)
	if n.Kind == NodeSelfClosing {
		sb.WriteString(" />")
	} else {
		sb.WriteByte('>')
	}
	return sb.String()
}

func writeAttrs(sb *strings.Builder, attrs []Attr) {
	for _, a := range attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteByte('"')
	}
}

// Parse 将文档切分为节点列表
//
// 所有节点的 Raw 拼接后与输入完全一致；流式生成中不完整的尾部标记作为文本节点保留。
func Parse(doc string) []Node {
	z := xhtml.NewTokenizer(strings.NewReader(doc))
	nodes := make([]Node, 0, 64)
	pos := 0

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		// Raw 必须在 TagName 之前复制，TagName 会原地转小写
		raw := string(z.Raw())
		pos += len(raw)

		node := Node{Raw: raw}
		switch tt {
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken, xhtml.EndTagToken:
			name, hasAttr := z.TagName()
			node.Name = string(name)
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				node.Attrs = append(node.Attrs, Attr{Key: string(key), Val: string(val)})
			}
			switch tt {
			case xhtml.StartTagToken:
				node.Kind = NodeStartTag
			case xhtml.SelfClosingTagToken:
				node.Kind = NodeSelfClosing
			default:
				node.Kind = NodeEndTag
			}
		case xhtml.CommentToken:
			node.Kind = NodeComment
		case xhtml.DoctypeToken:
			node.Kind = NodeDoctype
		default:
			node.Kind = NodeText
		}
		nodes = append(nodes, node)
	}

	if pos < len(doc) {
		nodes = append(nodes, Node{Kind: NodeText, Raw: doc[pos:]})
	}
	return nodes
}

// Serialize 将节点列表还原为文本
func Serialize(nodes []Node) string {
	var sb strings.Builder
	for i := range nodes {
		sb.WriteString(nodes[i].String())
	}
	return sb.String()
}
