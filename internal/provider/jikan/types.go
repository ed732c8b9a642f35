package jikan

// Wire types for the Jikan v4 REST API (unofficial MyAnimeList API).

type listResponse struct {
	Data []animeData `json:"data"`
}

type singleResponse struct {
	Data animeData `json:"data"`
}

type animeData struct {
	MalID         int      `json:"mal_id"`
	Title         string   `json:"title"`
	TitleEnglish  string   `json:"title_english"`
	TitleJapanese string   `json:"title_japanese"`
	TitleSynonyms []string `json:"title_synonyms"`
	Type          string   `json:"type"`
	Source        string   `json:"source"`
	Episodes      int      `json:"episodes"`
	Status        string   `json:"status"`
	Duration      string   `json:"duration"`
	Rating        string   `json:"rating"`
	Score         float64  `json:"score"`
	Favorites     int      `json:"favorites"`
	Synopsis      string   `json:"synopsis"`
	Year          int      `json:"year"`

	Aired struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"aired"`

	Images struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`

	Trailer struct {
		URL string `json:"url"`
	} `json:"trailer"`

	Genres  []named `json:"genres"`
	Studios []named `json:"studios"`
}

type named struct {
	Name string `json:"name"`
}

type relationsResponse struct {
	Data []struct {
		Relation string `json:"relation"`
		Entry    []struct {
			MalID int    `json:"mal_id"`
			Type  string `json:"type"`
			Name  string `json:"name"`
		} `json:"entry"`
	} `json:"data"`
}
