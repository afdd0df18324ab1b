package httpapi

type scrapeRunReq struct {
	Sites             []string `json:"sites"`
	SearchTerms       []string `json:"searchTerms"`
	MaxPages          int      `json:"maxPages"`
	MaxRuntimeSeconds int      `json:"maxRuntimeSeconds"`
}

type setPasswordReq struct {
	Password string `json:"password"`
}
