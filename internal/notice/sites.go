package notice

// SiteConfig describes what a board supports, surfaced by the API so the
// front end can render the right controls per site.
type SiteConfig struct {
	Name               Site     `json:"name"`
	DisplayName        string   `json:"display_name"`
	BaseURL            string   `json:"base_url"`
	SupportsCategories bool     `json:"supports_categories"`
	SupportsSearch     bool     `json:"supports_search"`
	Categories         []string `json:"categories"`
	SearchTypes        []string `json:"search_types"`
}

// TOPIS category codes as used by the board's tab switch function.
const (
	TOPISCategoryAll            = "A"
	TOPISCategoryTrafficControl = "T"
	TOPISCategoryBus            = "B"
	TOPISCategoryPolicy         = "J"
	TOPISCategoryWeather        = "W"
	TOPISCategoryEtc            = "E"
)

// TOPISCategoryLabels maps board label text to category codes.
var TOPISCategoryLabels = map[string]string{
	"통제안내": TOPISCategoryTrafficControl,
	"버스안내": TOPISCategoryBus,
	"정책안내": TOPISCategoryPolicy,
	"기상안내": TOPISCategoryWeather,
	"기타안내": TOPISCategoryEtc,
}

// SiteConfigs returns the static capability metadata for every supported
// site, keyed by site name.
func SiteConfigs() map[Site]SiteConfig {
	return map[Site]SiteConfig{
		SiteTOPIS: {
			Name:               SiteTOPIS,
			DisplayName:        "TOPIS (서울시 교통정보센터)",
			BaseURL:            "https://topis.seoul.go.kr",
			SupportsCategories: true,
			SupportsSearch:     false,
			Categories:         []string{"통제안내", "버스안내", "정책안내", "기상안내", "기타안내"},
			SearchTypes:        nil,
		},
		SiteICTR: {
			Name:               SiteICTR,
			DisplayName:        "인천교통공사",
			BaseURL:            "https://www.ictr.or.kr",
			SupportsCategories: false,
			SupportsSearch:     true,
			Categories:         []string{"전체"},
			SearchTypes:        []string{"title", "content", "titlecontent"},
		},
	}
}
