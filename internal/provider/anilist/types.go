package anilist

// Wire types for the AniList GraphQL API.

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   graphqlData    `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphqlData struct {
	Media *media `json:"Media"`
	Page  *page  `json:"Page"`
}

type page struct {
	Media []media `json:"media"`
}

type media struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms     []string `json:"synonyms"`
	Description  string   `json:"description"`
	Episodes     int      `json:"episodes"`
	Status       string   `json:"status"`
	Format       string   `json:"format"`
	Source       string   `json:"source"`
	Duration     int      `json:"duration"`
	SeasonYear   int      `json:"seasonYear"`
	Genres       []string `json:"genres"`
	AverageScore int      `json:"averageScore"`
	Favourites   int      `json:"favourites"`
	IsAdult      bool     `json:"isAdult"`
	BannerImage  string   `json:"bannerImage"`

	StartDate fuzzyDate `json:"startDate"`
	EndDate   fuzzyDate `json:"endDate"`

	CoverImage struct {
		ExtraLarge string `json:"extraLarge"`
		Large      string `json:"large"`
	} `json:"coverImage"`

	Trailer struct {
		ID   string `json:"id"`
		Site string `json:"site"`
	} `json:"trailer"`

	Studios struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`

	Relations *relationConnection `json:"relations"`
}

type relationConnection struct {
	Edges []struct {
		RelationType string `json:"relationType"`
		Node         media  `json:"node"`
	} `json:"edges"`
}

type fuzzyDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}
