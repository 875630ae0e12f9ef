package steam

// appDetailsEnvelope is the appdetails response, keyed by app id.
type appDetailsEnvelope map[string]struct {
	Success bool       `json:"success"`
	Data    appDetails `json:"data"`
}

type appDetails struct {
	Name        string `json:"name"`
	ReleaseDate struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
	PriceOverview *struct {
		FinalFormatted string `json:"final_formatted"`
	} `json:"price_overview"`
	Developers []string `json:"developers"`
	Publishers []string `json:"publishers"`
	Genres     []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"genres"`
	ShortDescription string `json:"short_description"`
}

// histogramResponse is the appreviewhistogram payload.
type histogramResponse struct {
	Success int `json:"success"`
	Results struct {
		Rollups []struct {
			Date                int64 `json:"date"`
			RecommendationsUp   int   `json:"recommendations_up"`
			RecommendationsDown int   `json:"recommendations_down"`
		} `json:"rollups"`
	} `json:"results"`
}
