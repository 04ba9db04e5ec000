package domain

// AnalysisRequest is the narrow contract forwarded to the external
// compatibility-scoring collaborator. The core never generates content
// itself.
type AnalysisRequest struct {
	DocumentRef    string   `json:"document_ref"`
	DocumentText   string   `json:"document_text"`
	CompanyProfile string   `json:"company_profile"`
	Keywords       []string `json:"keywords"`
}

// AnalysisResult is the collaborator's verdict on how well a document fits a
// subscriber's company profile.
type AnalysisResult struct {
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
	Explanation string  `json:"explanation"`
}
