// Package document 负责MJML文档的包装、解析以及元素标识注入
package document

// Opening 文档开始包装，包含 mj-head 与默认样式
const Opening = `<mjml>
  <mj-head>
    <mj-title>Email Template</mj-title>
    <mj-preview>Email preview</mj-preview>
    <mj-attributes>
      <mj-all padding="0px" />
      <mj-text font-family="Arial, sans-serif" />
      <mj-section padding="10px 0" />
      <mj-column padding="10px" />
    </mj-attributes>
    <mj-style>
      .email-content { width: 100%; }
      .text-center { text-align: center; }
      .text-highlight { color: #1E88E5; }
    </mj-style>
  </mj-head>
  <mj-body>
    <mj-section>
      <mj-column>
`

// Closing 文档结束包装
const Closing = `      </mj-column>
    </mj-section>
  </mj-body>
</mjml>`

// DefaultDocument 编辑器的初始文档
const DefaultDocument = `<mjml>
  <mj-body>
    <mj-section>
      <mj-column>
        <mj-text id="text-1" css-class="element-text-1" font-size="20px" color="#F45E43" font-family="helvetica">Hello MJML!</mj-text>
        <mj-text id="text-2" css-class="element-text-2" font-size="16px" color="#333333" font-family="helvetica">Describe the email you want in the prompt above. You can also upload an image to generate an email about it.</mj-text>
      </mj-column>
    </mj-section>
  </mj-body>
</mjml>`

// Construct 用固定包装包裹模型生成的内容
func Construct(content string) string {
	return Opening + content + Closing
}
