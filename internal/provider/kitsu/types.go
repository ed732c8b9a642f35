package kitsu

// Wire types for the Kitsu JSON:API.

type listResponse struct {
	Data     []resource `json:"data"`
	Included []resource `json:"included"`
}

type singleResponse struct {
	Data     resource   `json:"data"`
	Included []resource `json:"included"`
}

type resource struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Attributes attributes `json:"attributes"`

	Relationships struct {
		Categories struct {
			Data []struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			} `json:"data"`
		} `json:"categories"`
	} `json:"relationships"`
}

type attributes struct {
	// Anime attributes.
	Synopsis       string `json:"synopsis"`
	CanonicalTitle string `json:"canonicalTitle"`
	Titles         struct {
		En   string `json:"en"`
		EnJp string `json:"en_jp"`
		JaJp string `json:"ja_jp"`
	} `json:"titles"`
	AbbreviatedTitles []string `json:"abbreviatedTitles"`
	AverageRating     string   `json:"averageRating"`
	FavoritesCount    int      `json:"favoritesCount"`
	StartDate         string   `json:"startDate"`
	EndDate           string   `json:"endDate"`
	AgeRating         string   `json:"ageRating"`
	Subtype           string   `json:"subtype"`
	Status            string   `json:"status"`
	EpisodeCount      int      `json:"episodeCount"`
	EpisodeLength     int      `json:"episodeLength"`
	YoutubeVideoID    string   `json:"youtubeVideoId"`

	PosterImage struct {
		Original string `json:"original"`
		Large    string `json:"large"`
	} `json:"posterImage"`

	CoverImage struct {
		Original string `json:"original"`
	} `json:"coverImage"`

	// Category attributes.
	Title string `json:"title"`
}
