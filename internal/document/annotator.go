package document

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Policy 标识注入策略
type Policy int

const (
	// PolicyNone 只注入 id，用于流式预览
	PolicyNone Policy = iota
	// PolicyInline 通过 #id 选择器附加 id、会话ID和时间戳
	PolicyInline
	// PolicyClassSelector 将 id 镜像为 element-{id} 类名，并通过类选择器附加 data-id
	PolicyClassSelector
)

// ClassPrefix 类选择器策略生成的类名前缀
const ClassPrefix = "element-"

func (p Policy) String() string {
	switch p {
	case PolicyInline:
		return "inline"
	case PolicyClassSelector:
		return "class"
	default:
		return "none"
	}
}

// ParsePolicy 解析配置中的策略名称
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "class", "class-selector":
		return PolicyClassSelector, nil
	case "inline":
		return PolicyInline, nil
	case "none":
		return PolicyNone, nil
	default:
		return PolicyNone, fmt.Errorf("未知的标识策略: %s", name)
	}
}

// Metadata 附加到元素上的来源信息
type Metadata struct {
	SessionID string
	Timestamp time.Time
}

// Options 注入选项
type Options struct {
	Policy   Policy
	Metadata Metadata
}

// skipTags 结构性标签，永远不分配标识
var skipTags = map[string]struct{}{
	"mjml":               {},
	"mj-head":            {},
	"mj-body":            {},
	"mj-attributes":      {},
	"mj-all":             {},
	"mj-class":           {},
	"mj-style":           {},
	"mj-font":            {},
	"mj-breakpoint":      {},
	"mj-title":           {},
	"mj-preview":         {},
	"mj-html-attributes": {},
	"mj-selector":        {},
	"mj-html-attribute":  {},
}

// Eligible 判断标签是否需要分配标识
func Eligible(name string) bool {
	if !strings.HasPrefix(name, "mj-") {
		return false
	}
	_, skip := skipTags[name]
	return !skip
}

// counters 每种标签的计数器和已分配集合
//
// bound 按文档顺序记录第 i 个待分配元素得到的标识。流式文档只在尾部增长，
// 同一元素在多次注入之间因此保持相同标识。
type counters struct {
	next     map[string]int
	assigned map[string]struct{}
	bound    []string
}

func newCounters() *counters {
	return &counters{
		next:     make(map[string]int),
		assigned: make(map[string]struct{}),
	}
}

// assign 为 base 分配下一个未被占用的标识
func (c *counters) assign(base string, taken map[string]struct{}) string {
	n := c.next[base]
	for {
		n++
		id := fmt.Sprintf("%s-%d", base, n)
		if _, ok := taken[id]; ok {
			continue
		}
		if _, ok := c.assigned[id]; ok {
			continue
		}
		c.next[base] = n
		c.assigned[id] = struct{}{}
		taken[id] = struct{}{}
		return id
	}
}

// idFor 返回第 ordinal 个待分配元素的标识，必要时新分配
func (c *counters) idFor(ordinal int, base string, taken map[string]struct{}) string {
	if ordinal < len(c.bound) {
		id := c.bound[ordinal]
		_, conflict := taken[id]
		sameKind := strings.HasPrefix(id, base+"-")
		if !conflict && sameKind {
			taken[id] = struct{}{}
			return id
		}
		if !sameKind && !conflict {
			// 预览中未写完的标签得到的标识不会出现在任何文档里
			delete(c.assigned, id)
		}
		id = c.assign(base, taken)
		c.bound[ordinal] = id
		return id
	}
	id := c.assign(base, taken)
	c.bound = append(c.bound, id)
	return id
}

// selectorEntry 头部选择器块中的一项
type selectorEntry struct {
	path  string
	attrs []Attr
}

func (e selectorEntry) String() string {
	var sb strings.Builder
	sb.WriteString(`<mj-selector path="`)
	sb.WriteString(html.EscapeString(e.path))
	sb.WriteString(`">`)
	for _, a := range e.attrs {
		sb.WriteString(`<mj-html-attribute name="`)
		sb.WriteString(html.EscapeString(a.Key))
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteString(`</mj-html-attribute>`)
	}
	sb.WriteString(`</mj-selector>`)
	return sb.String()
}

// Annotate 为文档中的元素注入唯一标识
//
// 对同一文档重复执行结果不变；已带 id 的元素保持原样。
func Annotate(doc string, opts Options) string {
	return annotate(doc, opts, newCounters())
}

func annotate(doc string, opts Options, c *counters) string {
	nodes := Parse(doc)

	taken := make(map[string]struct{})
	existingPaths := make(map[string]struct{})
	for i := range nodes {
		n := &nodes[i]
		if !n.IsTag() {
			continue
		}
		if id, ok := n.Attr("id"); ok && id != "" {
			taken[id] = struct{}{}
		}
		if n.Name == "mj-selector" {
			if path, ok := n.Attr("path"); ok {
				existingPaths[path] = struct{}{}
			}
		}
	}

	var (
		entries   []selectorEntry
		headDepth int
		mjmlStart = -1
		headEnd   = -1
		headEmpty = -1
		attrsEnd  = -1
		ordinal   int
	)

	for i := range nodes {
		n := &nodes[i]
		switch n.Kind {
		case NodeStartTag:
			if n.Name == "mjml" && mjmlStart < 0 {
				mjmlStart = i
			}
			if n.Name == "mj-head" {
				headDepth++
				continue
			}
		case NodeEndTag:
			switch n.Name {
			case "mj-head":
				if headDepth > 0 {
					headDepth--
				}
				if headEnd < 0 {
					headEnd = i
				}
			case "mj-html-attributes":
				if headDepth > 0 && attrsEnd < 0 {
					attrsEnd = i
				}
			}
			continue
		case NodeSelfClosing:
			if n.Name == "mj-head" {
				if headEnd < 0 && headEmpty < 0 {
					headEmpty = i
				}
				continue
			}
		default:
			continue
		}

		if headDepth > 0 || !Eligible(n.Name) {
			continue
		}

		id, hasID := n.Attr("id")
		if hasID && id == "" {
			// 显式的空标识同样视为已标识
			continue
		}
		if !hasID {
			id = c.idFor(ordinal, strings.TrimPrefix(n.Name, "mj-"), taken)
			ordinal++
			n.SetAttr("id", id)
			if opts.Policy == PolicyClassSelector {
				addClass(n, ClassPrefix+id)
			}
		}

		if entry, ok := entryFor(n, id, opts); ok {
			if _, dup := existingPaths[entry.path]; !dup {
				existingPaths[entry.path] = struct{}{}
				entries = append(entries, entry)
			}
		}
	}

	if len(entries) == 0 {
		return Serialize(nodes)
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	block := strings.Join(lines, "\n      ")

	before := make(map[int]string, 1)
	after := make(map[int]string, 1)
	replace := make(map[int]string, 1)
	switch {
	case attrsEnd >= 0:
		before[attrsEnd] = "  " + block + "\n    "
	case headEnd >= 0:
		before[headEnd] = "  <mj-html-attributes>\n      " + block + "\n    </mj-html-attributes>\n  "
	case headEmpty >= 0:
		replace[headEmpty] = "<mj-head>\n    <mj-html-attributes>\n      " + block + "\n    </mj-html-attributes>\n  </mj-head>"
	case mjmlStart >= 0:
		after[mjmlStart] = "\n  <mj-head>\n    <mj-html-attributes>\n      " + block + "\n    </mj-html-attributes>\n  </mj-head>"
	default:
		// 片段没有 mjml 根元素，无处放置选择器块
		return Serialize(nodes)
	}

	var sb strings.Builder
	for i := range nodes {
		sb.WriteString(before[i])
		if r, ok := replace[i]; ok {
			sb.WriteString(r)
		} else {
			sb.WriteString(nodes[i].String())
		}
		sb.WriteString(after[i])
	}
	return sb.String()
}

// entryFor 根据策略生成元素对应的选择器项
func entryFor(n *Node, id string, opts Options) (selectorEntry, bool) {
	switch opts.Policy {
	case PolicyInline:
		attrs := []Attr{{Key: "data-id", Val: id}}
		if opts.Metadata.SessionID != "" {
			attrs = append(attrs, Attr{Key: "data-session-id", Val: opts.Metadata.SessionID})
		}
		if !opts.Metadata.Timestamp.IsZero() {
			attrs = append(attrs, Attr{Key: "data-created-at", Val: opts.Metadata.Timestamp.UTC().Format(time.RFC3339)})
		}
		return selectorEntry{path: "#" + id, attrs: attrs}, true
	case PolicyClassSelector:
		class := ClassPrefix + id
		if !hasClass(n, class) {
			return selectorEntry{}, false
		}
		return selectorEntry{
			path:  "." + class,
			attrs: []Attr{{Key: "data-id", Val: id}},
		}, true
	default:
		return selectorEntry{}, false
	}
}

func hasClass(n *Node, class string) bool {
	classes, ok := n.Attr("css-class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *Node, class string) {
	if hasClass(n, class) {
		return
	}
	if classes, ok := n.Attr("css-class"); ok && strings.TrimSpace(classes) != "" {
		n.SetAttr("css-class", strings.TrimSpace(classes)+" "+class)
		return
	}
	n.SetAttr("css-class", class)
}
