package tools

import "time"

// NewCatalog registers the full built-in tool set. The catalog is static:
// every deployment exposes the same tools, and the capability policy decides
// per turn what may actually execute.
func NewCatalog() *Registry {
	r := NewRegistry()

	r.MustRegister(&Tool{
		Name:        "fs_list",
		Description: "List files and directories under a workspace path as a tree",
		Risk:        RiskReader,
		InputSchema: fsListSchema,
		Handler:     fsListHandler,
	})
	r.MustRegister(&Tool{
		Name:        "fs_read",
		Description: "Read a UTF-8 file from the workspace",
		Risk:        RiskReader,
		InputSchema: fsReadSchema,
		Handler:     fsReadHandler,
	})
	r.MustRegister(&Tool{
		Name:        "fs_write",
		Description: "Write or append a file inside the workspace",
		Risk:        RiskWrite,
		InputSchema: fsWriteSchema,
		Handler:     fsWriteHandler,
	})
	r.MustRegister(&Tool{
		Name:        "shell_run",
		Description: "Run a shell command with the workspace root as working directory",
		Risk:        RiskShell,
		InputSchema: shellRunSchema,
		Timeout:     maxShellTimeout,
		Handler:     shellRunHandler,
	})
	r.MustRegister(&Tool{
		Name:        "browser_start",
		Description: "Start a headless browser for this session",
		Risk:        RiskBrowser,
		InputSchema: emptyObjectSchema,
		Timeout:     30 * time.Second,
		Handler:     browserStartHandler,
	})
	r.MustRegister(&Tool{
		Name:        "browser_navigate",
		Description: "Navigate the session browser to a URL",
		Risk:        RiskBrowser,
		InputSchema: browserNavigateSchema,
		Timeout:     60 * time.Second,
		Handler:     browserNavigateHandler,
	})
	r.MustRegister(&Tool{
		Name:        "browser_screenshot",
		Description: "Capture the current page as an image attachment",
		Risk:        RiskBrowser,
		InputSchema: emptyObjectSchema,
		Timeout:     30 * time.Second,
		Handler:     browserScreenshotHandler,
	})
	r.MustRegister(&Tool{
		Name:        "doc_pptx_create",
		Description: "Create a PowerPoint presentation from structured slides",
		Risk:        RiskGenerator,
		InputSchema: presentationSchema,
		Handler:     docPptxHandler,
	})
	r.MustRegister(&Tool{
		Name:        "doc_quote_docx_create",
		Description: "Create a quotation document (docx)",
		Risk:        RiskGenerator,
		InputSchema: quoteSchema,
		Handler:     docQuoteDocxHandler,
	})
	r.MustRegister(&Tool{
		Name:        "doc_quote_xlsx_create",
		Description: "Create a quotation spreadsheet (xlsx)",
		Risk:        RiskGenerator,
		InputSchema: quoteSchema,
		Handler:     docQuoteXlsxHandler,
	})
	r.MustRegister(&Tool{
		Name:        "doc_inspection_docx_create",
		Description: "Create an inspection report document (docx)",
		Risk:        RiskGenerator,
		InputSchema: inspectionSchema,
		Handler:     docInspectionDocxHandler,
	})
	r.MustRegister(&Tool{
		Name:        "doc_inspection_xlsx_create",
		Description: "Create an inspection report spreadsheet (xlsx)",
		Risk:        RiskGenerator,
		InputSchema: inspectionSchema,
		Handler:     docInspectionXlsxHandler,
	})
	r.MustRegister(&Tool{
		Name:        "proto_generate",
		Description: "Generate a clickable HTML prototype bundle with a preview URL",
		Risk:        RiskGenerator,
		InputSchema: protoSchema,
		Handler:     protoGenerateHandler,
	})
	r.MustRegister(&Tool{
		Name:        "attachment_read",
		Description: "Read a previously produced or uploaded attachment by file id",
		Risk:        RiskReader,
		InputSchema: attachmentReadSchema,
		Handler:     attachmentReadHandler,
	})

	return r
}
